package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// querier *sql.DB / *sql.Conn / *sql.Tx 的公共子集
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableRebuild 一次影子表重建
//
// CreateSQL 以 %s 作为影子表名占位符。新旧表同名列按原值复制，
// Expr 可为个别新列指定取值表达式（基于旧表列）；旧表独有的列被丢弃，
// 新表独有且无表达式的列取默认值。
type TableRebuild struct {
	Table     string
	CreateSQL string
	Expr      map[string]string
	After     []string // 重命名完成后执行（如重建索引）
}

// FKViolation PRAGMA foreign_key_check 的一行结果
type FKViolation struct {
	Table  string
	RowID  int64
	Parent string
	FKID   int64
}

// Maintainer 面向单个数据库文件的一次性维护操作
type Maintainer struct {
	db        *sql.DB
	backupDir string
	logger    *zap.Logger
}

// NewMaintainer 创建维护器
func NewMaintainer(db *sql.DB, backupDir string, logger *zap.Logger) *Maintainer {
	return &Maintainer{db: db, backupDir: backupDir, logger: logger}
}

// Backup 生成一致性快照，返回备份文件路径
func (m *Maintainer) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("创建备份目录失败: %w", err)
	}
	name := fmt.Sprintf("students_backup_%s.db", time.Now().Format("20060102_150405"))
	dest := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(m.backupDir, fmt.Sprintf("students_backup_%s.db", time.Now().Format("20060102_150405.000000000")))
	}

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("备份数据库失败: %w", err)
	}
	m.logger.Info("数据库已备份", zap.String("backup", dest))
	return dest, nil
}

// RebuildTables 按影子表流程重建若干张表
//
// 流程：备份 → 关闭外键 → 事务内逐表(建影子表/复制列交集/删旧表/重命名) →
// 提交 → 开启外键 → foreign_key_check。任一步失败即回滚，备份文件作为恢复手段。
// 违反外键约束的行只记录日志并返回，不自动修复。
func (m *Maintainer) RebuildTables(ctx context.Context, rebuilds ...TableRebuild) ([]FKViolation, error) {
	if _, err := m.Backup(ctx); err != nil {
		return nil, err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	defer conn.Close()

	// foreign_keys 在事务内无效，必须在 BEGIN 之前切换
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return nil, fmt.Errorf("关闭外键约束失败: %w", err)
	}
	defer conn.ExecContext(context.Background(), "PRAGMA foreign_keys=ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}

	for _, rb := range rebuilds {
		if err := rebuildOne(ctx, tx, rb); err != nil {
			tx.Rollback()
			m.logger.Error("重建表失败，已回滚", zap.String("table", rb.Table), zap.Error(err))
			return nil, err
		}
		m.logger.Info("表已重建", zap.String("table", rb.Table))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("开启外键约束失败: %w", err)
	}

	violations, err := ForeignKeyCheck(ctx, conn)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		m.logger.Warn("外键约束违规",
			zap.String("table", v.Table),
			zap.Int64("rowid", v.RowID),
			zap.String("parent", v.Parent),
		)
	}
	return violations, nil
}

func rebuildOne(ctx context.Context, tx *sql.Tx, rb TableRebuild) error {
	shadow := rb.Table + "_new"

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(shadow)); err != nil {
		return fmt.Errorf("清理影子表 %s 失败: %w", shadow, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(rb.CreateSQL, quoteIdent(shadow))); err != nil {
		return fmt.Errorf("创建影子表 %s 失败: %w", shadow, err)
	}

	oldCols, err := TableColumns(ctx, tx, rb.Table)
	if err != nil {
		return err
	}
	newCols, err := tableColumnInfo(ctx, tx, shadow)
	if err != nil {
		return err
	}

	old := make(map[string]bool, len(oldCols))
	for _, c := range oldCols {
		old[c] = true
	}

	var targets, sources []string
	for _, c := range newCols {
		src, ok := rb.Expr[c.Name]
		if !ok {
			if !old[c.Name] {
				continue
			}
			src = quoteIdent(c.Name)
		}
		targets = append(targets, quoteIdent(c.Name))
		sources = append(sources, c.fillNull(src))
	}

	if len(targets) > 0 {
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quoteIdent(shadow), strings.Join(targets, ", "), strings.Join(sources, ", "), quoteIdent(rb.Table))
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("复制 %s 数据失败: %w", rb.Table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(rb.Table)); err != nil {
		return fmt.Errorf("删除旧表 %s 失败: %w", rb.Table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(shadow), quoteIdent(rb.Table))); err != nil {
		return fmt.Errorf("重命名影子表 %s 失败: %w", shadow, err)
	}
	for _, stmt := range rb.After {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行 %s 后置语句失败: %w", rb.Table, err)
		}
	}
	return nil
}

// TableExists 判断表是否存在
func TableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询表 %s 失败: %w", table, err)
	}
	return n > 0, nil
}

// TableColumns 返回表的列名（按定义顺序）
func TableColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 表结构失败: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// columnInfo pragma_table_info 中复制数据所需的字段
type columnInfo struct {
	Name    string
	Type    string
	NotNull bool
	Default sql.NullString
	PK      bool
}

// fillNull 旧库中的 NULL 复制到 NOT NULL 列时改取列默认值；
// 无默认值的非主键文本列取空串，其余保持原值
func (c columnInfo) fillNull(src string) string {
	if !c.NotNull {
		return src
	}
	if c.Default.Valid {
		return fmt.Sprintf("COALESCE(%s, %s)", src, c.Default.String)
	}
	if !c.PK && strings.EqualFold(c.Type, "TEXT") {
		return fmt.Sprintf("COALESCE(%s, '')", src)
	}
	return src
}

func tableColumnInfo(ctx context.Context, q querier, table string) ([]columnInfo, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 表结构失败: %w", table, err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			c       columnInfo
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		c.PK = pk > 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// PrimaryKeyColumns 返回主键列（按主键序号）
func PrimaryKeyColumns(ctx context.Context, q querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", table)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 主键失败: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// HasForeignKeys 判断表是否声明了外键
func HasForeignKeys(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM pragma_foreign_key_list(?)", table).Scan(&n); err != nil {
		return false, fmt.Errorf("读取 %s 外键失败: %w", table, err)
	}
	return n > 0, nil
}

// AddColumnIfMissing 列不存在时追加，返回是否新增
func AddColumnIfMissing(ctx context.Context, q querier, table, column, decl string) (bool, error) {
	cols, err := TableColumns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c, column) {
			return false, nil
		}
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), decl)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("添加列 %s.%s 失败: %w", table, column, err)
	}
	return true, nil
}

// ForeignKeyCheck 执行 PRAGMA foreign_key_check
func ForeignKeyCheck(ctx context.Context, q querier) ([]FKViolation, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("外键检查失败: %w", err)
	}
	defer rows.Close()

	var out []FKViolation
	for rows.Next() {
		var (
			v     FKViolation
			rowID sql.NullInt64
		)
		if err := rows.Scan(&v.Table, &rowID, &v.Parent, &v.FKID); err != nil {
			return nil, err
		}
		v.RowID = rowID.Int64
		out = append(out, v)
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
