package database

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// 旧版数据库（单主键学生表、自由文本班级列、无外键）的一次性升级。
// 每项升级均可重复执行：Needed 返回 false 时直接跳过。

// 升级名称
const (
	UpgradeClasses      = "classes"
	UpgradeDeyuColumns  = "deyu-columns"
	UpgradeCompositeKey = "composite-key"
	UpgradeForeignKeys  = "foreign-keys"
)

// UpgradeOrder "all" 时的执行顺序
var UpgradeOrder = []string{UpgradeClasses, UpgradeDeyuColumns, UpgradeCompositeKey, UpgradeForeignKeys}

// ErrUnknownUpgrade 升级名称不存在
var ErrUnknownUpgrade = errors.New("未知的升级项")

// UpgradeResult 单项升级结果
type UpgradeResult struct {
	Name       string
	Applied    bool
	Violations []FKViolation
}

// 影子表 DDL，%s 为表名占位
const (
	usersDDL = `CREATE TABLE %s (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    username        TEXT     NOT NULL UNIQUE,
    password_hash   TEXT     NOT NULL,
    is_admin        INTEGER  NOT NULL DEFAULT 0,
    class_id        INTEGER  REFERENCES classes(id) ON UPDATE CASCADE ON DELETE SET NULL,
    reset_password  TEXT,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	studentsDDL = `CREATE TABLE %s (
    id                    TEXT     NOT NULL,
    class_id              INTEGER  REFERENCES classes(id) ON UPDATE CASCADE ON DELETE RESTRICT,
    name                  TEXT     NOT NULL,
    gender                TEXT     NOT NULL,
    height                REAL,
    weight                REAL,
    chest_circumference   REAL,
    vital_capacity        REAL,
    dental_caries         TEXT,
    vision_left           REAL,
    vision_right          REAL,
    physical_test_status  TEXT,
    comments              TEXT,
    daof                  TEXT     NOT NULL DEFAULT '',
    yuwen                 TEXT     NOT NULL DEFAULT '',
    shuxue                TEXT     NOT NULL DEFAULT '',
    yingyu                TEXT     NOT NULL DEFAULT '',
    laodong               TEXT     NOT NULL DEFAULT '',
    tiyu                  TEXT     NOT NULL DEFAULT '',
    yinyue                TEXT     NOT NULL DEFAULT '',
    meishu                TEXT     NOT NULL DEFAULT '',
    kexue                 TEXT     NOT NULL DEFAULT '',
    zonghe                TEXT     NOT NULL DEFAULT '',
    xinxi                 TEXT     NOT NULL DEFAULT '',
    shufa                 TEXT     NOT NULL DEFAULT '',
    pinzhi                INTEGER,
    xuexi                 INTEGER,
    jiankang              INTEGER,
    shenmei               INTEGER,
    shijian               INTEGER,
    shenghuo              INTEGER,
    semester              TEXT     NOT NULL DEFAULT '上学期',
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id, class_id)
)`

	commentsDDL = `CREATE TABLE %s (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    student_id  TEXT     NOT NULL,
    class_id    INTEGER  REFERENCES classes(id) ON UPDATE CASCADE ON DELETE SET NULL,
    content     TEXT     NOT NULL,
    user_id     INTEGER  REFERENCES users(id) ON UPDATE CASCADE ON DELETE SET NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	todosDDL = `CREATE TABLE %s (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    title        TEXT     NOT NULL,
    description  TEXT,
    deadline     DATETIME,
    status       TEXT     NOT NULL DEFAULT 'pending',
    user_id      INTEGER  REFERENCES users(id) ON UPDATE CASCADE ON DELETE CASCADE,
    class_id     INTEGER  REFERENCES classes(id) ON UPDATE CASCADE ON DELETE CASCADE,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	activitiesDDL = `CREATE TABLE %s (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    action       TEXT     NOT NULL,
    target_type  TEXT,
    target_id    TEXT,
    user_id      INTEGER  REFERENCES users(id) ON UPDATE CASCADE ON DELETE SET NULL,
    class_id     INTEGER  REFERENCES classes(id) ON UPDATE CASCADE ON DELETE SET NULL,
    details      TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
)

// 旧库中 class_id 可能以空串或文本存储
const classIDExpr = `CASE WHEN class_id IS NULL OR TRIM(class_id) = '' THEN NULL ELSE CAST(class_id AS INTEGER) END`

var deyuColumns = []struct{ name, decl string }{
	{"pinzhi", "INTEGER"},
	{"xuexi", "INTEGER"},
	{"jiankang", "INTEGER"},
	{"shenmei", "INTEGER"},
	{"shijian", "INTEGER"},
	{"shenghuo", "INTEGER"},
	{"semester", "TEXT NOT NULL DEFAULT '上学期'"},
}

// Upgrade 执行单项升级
func (m *Maintainer) Upgrade(ctx context.Context, name string) (*UpgradeResult, error) {
	needed, err := m.upgradeNeeded(ctx, name)
	if err != nil {
		return nil, err
	}

	result := &UpgradeResult{Name: name}
	if !needed {
		m.logger.Info("无需升级，跳过", zap.String("upgrade", name))
		return result, nil
	}

	m.logger.Info("开始升级", zap.String("upgrade", name))
	switch name {
	case UpgradeClasses:
		err = m.upgradeClasses(ctx)
	case UpgradeDeyuColumns:
		err = m.upgradeDeyuColumns(ctx)
	case UpgradeCompositeKey:
		result.Violations, err = m.upgradeCompositeKey(ctx)
	case UpgradeForeignKeys:
		result.Violations, err = m.upgradeForeignKeys(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("升级 %s 失败: %w", name, err)
	}

	result.Applied = true
	m.logger.Info("升级完成", zap.String("upgrade", name), zap.Int("fk_violations", len(result.Violations)))
	return result, nil
}

// PendingUpgrades 返回尚需执行的升级项（按执行顺序）
func (m *Maintainer) PendingUpgrades(ctx context.Context) ([]string, error) {
	var pending []string
	for _, name := range UpgradeOrder {
		needed, err := m.upgradeNeeded(ctx, name)
		if err != nil {
			return nil, err
		}
		if needed {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

// UpgradeAll 按固定顺序执行全部升级，遇错即停
func (m *Maintainer) UpgradeAll(ctx context.Context) ([]*UpgradeResult, error) {
	var results []*UpgradeResult
	for _, name := range UpgradeOrder {
		r, err := m.Upgrade(ctx, name)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (m *Maintainer) upgradeNeeded(ctx context.Context, name string) (bool, error) {
	switch name {
	case UpgradeClasses:
		return m.classesNeeded(ctx)
	case UpgradeDeyuColumns:
		return m.deyuColumnsNeeded(ctx)
	case UpgradeCompositeKey:
		return m.compositeKeyNeeded(ctx)
	case UpgradeForeignKeys:
		tables, err := m.tablesWithoutForeignKeys(ctx)
		return len(tables) > 0, err
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownUpgrade, name)
	}
}

// ── classes：由学生表的文本班级列生成班级表并回填 class_id ──

func (m *Maintainer) classesNeeded(ctx context.Context) (bool, error) {
	ok, err := TableExists(ctx, m.db, "students")
	if err != nil || !ok {
		return false, err
	}
	cols, err := TableColumns(ctx, m.db, "students")
	if err != nil {
		return false, err
	}
	if !slices.Contains(cols, "class") {
		return false, nil
	}
	if !slices.Contains(cols, "class_id") {
		return true, nil
	}
	if ok, err := TableExists(ctx, m.db, "classes"); err != nil || !ok {
		return !ok, err
	}

	var pending int
	err = m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students
		WHERE TRIM(COALESCE(class, '')) <> '' AND (class_id IS NULL OR TRIM(class_id) = '')`).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("统计待回填学生失败: %w", err)
	}
	return pending > 0, nil
}

func (m *Maintainer) upgradeClasses(ctx context.Context) error {
	if _, err := m.Backup(ctx); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS classes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    class_name  TEXT     NOT NULL UNIQUE,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("创建班级表失败: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO classes (class_name)
		SELECT DISTINCT TRIM(class) FROM students
		WHERE TRIM(COALESCE(class, '')) <> ''
		  AND TRIM(class) NOT IN (SELECT class_name FROM classes)`)
	if err != nil {
		return fmt.Errorf("生成班级记录失败: %w", err)
	}
	created, _ := res.RowsAffected()

	for _, table := range []string{"students", "users"} {
		cols, err := TableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		if !slices.Contains(cols, "class") {
			continue
		}
		if _, err := AddColumnIfMissing(ctx, tx, table, "class_id", "INTEGER"); err != nil {
			return err
		}
		stmt := fmt.Sprintf(`UPDATE %s SET class_id = (
			SELECT c.id FROM classes c WHERE c.class_name = TRIM(%s.class))
			WHERE TRIM(COALESCE(class, '')) <> '' AND (class_id IS NULL OR TRIM(class_id) = '')`,
			quoteIdent(table), quoteIdent(table))
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("回填 %s.class_id 失败: %w", table, err)
		}
		n, _ := res.RowsAffected()
		m.logger.Info("已回填 class_id", zap.String("table", table), zap.Int64("rows", n))
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	m.logger.Info("班级表已生成", zap.Int64("created", created))
	return nil
}

// ── deyu-columns：补齐德育维度与学期列 ──

func (m *Maintainer) deyuColumnsNeeded(ctx context.Context) (bool, error) {
	ok, err := TableExists(ctx, m.db, "students")
	if err != nil || !ok {
		return false, err
	}
	cols, err := TableColumns(ctx, m.db, "students")
	if err != nil {
		return false, err
	}
	for _, c := range deyuColumns {
		if !slices.Contains(cols, c.name) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Maintainer) upgradeDeyuColumns(ctx context.Context) error {
	if _, err := m.Backup(ctx); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range deyuColumns {
		added, err := AddColumnIfMissing(ctx, tx, "students", c.name, c.decl)
		if err != nil {
			return err
		}
		if added {
			m.logger.Info("已添加列", zap.String("column", c.name))
		}
	}
	return tx.Commit()
}

// ── composite-key：学生主键改为 (id, class_id) ──

func (m *Maintainer) compositeKeyNeeded(ctx context.Context) (bool, error) {
	ok, err := TableExists(ctx, m.db, "students")
	if err != nil || !ok {
		return false, err
	}
	pk, err := PrimaryKeyColumns(ctx, m.db, "students")
	if err != nil {
		return false, err
	}
	return !slices.Equal(pk, []string{"id", "class_id"}), nil
}

func (m *Maintainer) upgradeCompositeKey(ctx context.Context) ([]FKViolation, error) {
	cols, err := TableColumns(ctx, m.db, "students")
	if err != nil {
		return nil, err
	}
	// 新表不再保留文本班级列，必须先完成回填
	if pending, err := m.classesNeeded(ctx); err != nil {
		return nil, err
	} else if pending {
		return nil, fmt.Errorf("students.class 尚未回填，请先执行 %s 升级", UpgradeClasses)
	}

	rb := TableRebuild{
		Table:     "students",
		CreateSQL: studentsDDL,
		After:     []string{"CREATE INDEX IF NOT EXISTS idx_students_class_id ON students(class_id)"},
	}
	if slices.Contains(cols, "class_id") {
		rb.Expr = map[string]string{"class_id": classIDExpr}
	}
	return m.RebuildTables(ctx, rb)
}

// ── foreign-keys：为旧表补上外键约束 ──

var foreignKeyTables = []struct {
	table string
	ddl   string
	after []string
}{
	{"users", usersDDL, nil},
	{"students", studentsDDL, []string{"CREATE INDEX IF NOT EXISTS idx_students_class_id ON students(class_id)"}},
	{"comments", commentsDDL, nil},
	{"todos", todosDDL, nil},
	{"activities", activitiesDDL, nil},
}

func (m *Maintainer) tablesWithoutForeignKeys(ctx context.Context) ([]string, error) {
	var out []string
	for _, t := range foreignKeyTables {
		ok, err := TableExists(ctx, m.db, t.table)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		has, err := HasForeignKeys(ctx, m.db, t.table)
		if err != nil {
			return nil, err
		}
		if !has {
			out = append(out, t.table)
		}
	}
	return out, nil
}

func (m *Maintainer) upgradeForeignKeys(ctx context.Context) ([]FKViolation, error) {
	tables, err := m.tablesWithoutForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	if ok, err := TableExists(ctx, m.db, "classes"); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("classes 表不存在，请先执行 %s 升级", UpgradeClasses)
	}

	var rebuilds []TableRebuild
	for _, t := range foreignKeyTables {
		if !slices.Contains(tables, t.table) {
			continue
		}
		cols, err := TableColumns(ctx, m.db, t.table)
		if err != nil {
			return nil, err
		}

		rb := TableRebuild{Table: t.table, CreateSQL: t.ddl, After: t.after, Expr: map[string]string{}}
		if slices.Contains(cols, "class_id") {
			rb.Expr["class_id"] = classIDExpr
		} else if t.table == "comments" && slices.Contains(cols, "student_id") {
			// 旧评语表无班级列，按学号从学生表推断
			rb.Expr["class_id"] = `(SELECT s.class_id FROM students s WHERE s.id = comments.student_id LIMIT 1)`
		}
		if t.table == "students" && slices.Contains(cols, "class") {
			if pending, err := m.classesNeeded(ctx); err != nil {
				return nil, err
			} else if pending {
				return nil, fmt.Errorf("students.class 尚未回填，请先执行 %s 升级", UpgradeClasses)
			}
		}
		rebuilds = append(rebuilds, rb)
	}
	return m.RebuildTables(ctx, rebuilds...)
}
