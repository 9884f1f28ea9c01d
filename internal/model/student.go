package model

// Student 学生表，对应 students，主键 (id, class_id)
// 同一学号可以分别存在于不同班级
type Student struct {
	ID                 string   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ClassID            *uint    `gorm:"primaryKey;autoIncrement:false" json:"class_id"`
	Name               string   `gorm:"not null"                       json:"name"`
	Gender             string   `gorm:"not null"                       json:"gender"`
	Height             *float64 `json:"height"`
	Weight             *float64 `json:"weight"`
	ChestCircumference *float64 `json:"chest_circumference"`
	VitalCapacity      *float64 `json:"vital_capacity"`
	DentalCaries       *string  `json:"dental_caries"`
	VisionLeft         *float64 `json:"vision_left"`
	VisionRight        *float64 `json:"vision_right"`
	PhysicalTestStatus *string  `json:"physical_test_status"`
	Comments           *string  `json:"comments"`

	// 学科成绩
	Daof    string `gorm:"not null;default:''" json:"daof"`
	Yuwen   string `gorm:"not null;default:''" json:"yuwen"`
	Shuxue  string `gorm:"not null;default:''" json:"shuxue"`
	Yingyu  string `gorm:"not null;default:''" json:"yingyu"`
	Laodong string `gorm:"not null;default:''" json:"laodong"`
	Tiyu    string `gorm:"not null;default:''" json:"tiyu"`
	Yinyue  string `gorm:"not null;default:''" json:"yinyue"`
	Meishu  string `gorm:"not null;default:''" json:"meishu"`
	Kexue   string `gorm:"not null;default:''" json:"kexue"`
	Zonghe  string `gorm:"not null;default:''" json:"zonghe"`
	Xinxi   string `gorm:"not null;default:''" json:"xinxi"`
	Shufa   string `gorm:"not null;default:''" json:"shufa"`

	// 德育维度
	Pinzhi   *int `json:"pinzhi"`
	Xuexi    *int `json:"xuexi"`
	Jiankang *int `json:"jiankang"`
	Shenmei  *int `json:"shenmei"`
	Shijian  *int `json:"shijian"`
	Shenghuo *int `json:"shenghuo"`

	Semester string `gorm:"not null;default:'上学期'" json:"semester"`
	Timestamps

	// 关联
	Class *Class `gorm:"foreignKey:ClassID" json:"-"`
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// ClassName 关联班级名称，未加载或未分班时为空
func (s *Student) ClassName() string {
	if s.Class == nil {
		return ""
	}
	return s.Class.ClassName
}

// ── 学科 ──

// Subject 学科定义
type Subject struct {
	Key   string // 列名
	Label string
}

// Subjects 十二门学科，顺序即导入导出列顺序
var Subjects = []Subject{
	{"daof", "道法"},
	{"yuwen", "语文"},
	{"shuxue", "数学"},
	{"yingyu", "英语"},
	{"laodong", "劳动"},
	{"tiyu", "体育"},
	{"yinyue", "音乐"},
	{"meishu", "美术"},
	{"kexue", "科学"},
	{"zonghe", "综合"},
	{"xinxi", "信息"},
	{"shufa", "书法"},
}

// 成绩等级
const (
	GradeExcellent = "优"
	GradeGood      = "良"
	GradePass      = "及格"
	GradePending   = "待及格"
)

// Grades 合法的成绩等级（另允许空串表示未录入）
var Grades = []string{GradeExcellent, GradeGood, GradePass, GradePending}

// IsSubject 判断是否为合法学科列名
func IsSubject(key string) bool {
	for _, s := range Subjects {
		if s.Key == key {
			return true
		}
	}
	return false
}

// IsGrade 判断是否为合法成绩（空串合法）
func IsGrade(v string) bool {
	if v == "" {
		return true
	}
	for _, g := range Grades {
		if g == v {
			return true
		}
	}
	return false
}

// GradeOf 读取指定学科成绩
func (s *Student) GradeOf(key string) string {
	if p := s.gradeField(key); p != nil {
		return *p
	}
	return ""
}

// SetGrade 设置指定学科成绩，学科不存在返回 false
func (s *Student) SetGrade(key, grade string) bool {
	p := s.gradeField(key)
	if p == nil {
		return false
	}
	*p = grade
	return true
}

func (s *Student) gradeField(key string) *string {
	switch key {
	case "daof":
		return &s.Daof
	case "yuwen":
		return &s.Yuwen
	case "shuxue":
		return &s.Shuxue
	case "yingyu":
		return &s.Yingyu
	case "laodong":
		return &s.Laodong
	case "tiyu":
		return &s.Tiyu
	case "yinyue":
		return &s.Yinyue
	case "meishu":
		return &s.Meishu
	case "kexue":
		return &s.Kexue
	case "zonghe":
		return &s.Zonghe
	case "xinxi":
		return &s.Xinxi
	case "shufa":
		return &s.Shufa
	}
	return nil
}

// ── 德育 ──

// DeyuDimension 德育维度定义
type DeyuDimension struct {
	Key     string
	Label   string
	Ceiling int // 满分，仅用于提示，不强制
}

// DeyuDimensions 六个德育维度
var DeyuDimensions = []DeyuDimension{
	{"pinzhi", "品质", 30},
	{"xuexi", "学习", 20},
	{"jiankang", "健康", 20},
	{"shenmei", "审美", 10},
	{"shijian", "实践", 10},
	{"shenghuo", "生活", 10},
}

// DefaultSemester 默认学期
const DefaultSemester = "上学期"

// DeyuOf 读取指定维度得分
func (s *Student) DeyuOf(key string) *int {
	if p := s.deyuField(key); p != nil {
		return *p
	}
	return nil
}

// SetDeyu 设置指定维度得分
func (s *Student) SetDeyu(key string, v *int) bool {
	p := s.deyuField(key)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// DeyuTotal 六个维度之和，空值按 0 计
func (s *Student) DeyuTotal() int {
	total := 0
	for _, d := range DeyuDimensions {
		if v := s.DeyuOf(d.Key); v != nil {
			total += *v
		}
	}
	return total
}

func (s *Student) deyuField(key string) **int {
	switch key {
	case "pinzhi":
		return &s.Pinzhi
	case "xuexi":
		return &s.Xuexi
	case "jiankang":
		return &s.Jiankang
	case "shenmei":
		return &s.Shenmei
	case "shijian":
		return &s.Shijian
	case "shenghuo":
		return &s.Shenghuo
	}
	return nil
}
