package service

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// ── ICS 日历 ──────────────────────────────────────────────
//
// 待办与 iCalendar (RFC 5545) 互转：
//   - 导出：有截止时间的待办生成 VEVENT，DTSTART 即截止时间
//   - 导入：VEVENT 的 SUMMARY/DESCRIPTION/DTSTART 映射为标题/描述/截止时间
//   - 分类 “已完成” 表示待办已完成
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize   = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout  = 30 * time.Second
	icsCompleted     = "已完成"
	icsPending       = "待完成"
	icsEventDuration = 30 * time.Minute
)

// parsedTodo ICS 导入中间结构
type parsedTodo struct {
	Index       int // 事件序号，从 1 开始
	Title       string
	Description string
	Deadline    *time.Time
	Completed   bool
}

// FetchICSContent 从 URL 获取 ICS 内容
func FetchICSContent(rawURL string) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}
	if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return nil, fmt.Errorf("%w: 不支持的地址 %s", ErrICSInvalid, rawURL)
	}

	client := &http.Client{Timeout: icsFetchTimeout}
	resp, err := client.Get(u)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	// 限制响应体大小
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// BuildTodoCalendar 生成待办日历，无截止时间的待办不进入日历
func BuildTodoCalendar(name string, todos []model.Todo) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//ClassMaster//Todos//CN")
	cal.SetXWRCalName(name)

	for _, t := range todos {
		if t.Deadline == nil {
			continue
		}
		e := cal.AddEvent("todo-" + strconv.FormatUint(uint64(t.ID), 10) + "@classmaster")
		e.SetCreatedTime(t.CreatedAt)
		e.SetDtStampTime(t.UpdatedAt)
		e.SetModifiedAt(t.UpdatedAt)
		e.SetStartAt(*t.Deadline)
		e.SetEndAt(t.Deadline.Add(icsEventDuration))
		e.SetSummary(t.Title)
		if t.Description != nil && *t.Description != "" {
			e.SetDescription(*t.Description)
		}
		category := icsPending
		if t.Status == model.TodoCompleted {
			category = icsCompleted
		}
		e.SetProperty(ics.ComponentPropertyCategories, category)
	}
	return cal.Serialize()
}

// ParseTodoCalendar 解析 ICS 中的 VEVENT；无标题的事件跳过并返回其序号
func ParseTodoCalendar(r io.Reader, loc *time.Location) ([]parsedTodo, []int, error) {
	cal, err := ics.ParseCalendar(io.LimitReader(r, icsMaxFileSize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrICSInvalid, err)
	}

	var (
		todos   []parsedTodo
		skipped []int
	)
	for i, evt := range cal.Events() {
		summary := evt.GetProperty(ics.ComponentPropertySummary)
		if summary == nil || strings.TrimSpace(summary.Value) == "" {
			skipped = append(skipped, i+1)
			continue
		}
		item := parsedTodo{Index: i + 1, Title: strings.TrimSpace(summary.Value)}
		if desc := evt.GetProperty(ics.ComponentPropertyDescription); desc != nil {
			item.Description = strings.TrimSpace(desc.Value)
		}
		if t, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc); err == nil {
			item.Deadline = &t
		}
		if cat := evt.GetProperty(ics.ComponentPropertyCategories); cat != nil {
			item.Completed = strings.Contains(cat.Value, icsCompleted)
		}
		todos = append(todos, item)
	}
	return todos, skipped, nil
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	// 尝试多种 ICS 日期格式
	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"20060102",
	}

	// 检查 TZID 参数
	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	for _, layout := range formats {
		t, err := time.Parse(layout, val)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "Z") {
			return t.In(loc), nil
		}
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), nil
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}

	return time.Time{}, fmt.Errorf("无法解析日期: %s", val)
}
