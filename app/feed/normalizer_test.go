package feed

import (
	"testing"
	"time"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *Classifier) {
	t.Helper()
	profile := DefaultProfile()
	return NewNormalizer(profile, time.UTC), NewClassifier(profile.Rules)
}

func TestNormalizerRunCompletedWithRatingAndComment(t *testing.T) {
	normalizer, classifier := newTestNormalizer(t)

	raw := RawRecord{
		Title:       "读过测试书籍A",
		Link:        "https://book.douban.com/subject/1000001/",
		ID:          "https://book.douban.com/subject/1000001/",
		PublishedAt: "Mon, 10 Feb 2026 12:00:00 GMT",
		Description: "推荐: 力荐 短评: 非常好看",
	}
	rule, ok := classifier.Run(raw.Title)
	if !ok {
		t.Fatal("Expected title to classify")
	}

	record := normalizer.Run(raw, rule)

	expected := NormalizedRecord{
		Name:    "测试书籍A",
		Link:    "https://book.douban.com/subject/1000001/",
		Date:    "2026-02-10",
		Rating:  "★★★★★",
		Status:  "读过",
		Comment: "非常好看",
	}
	if record != expected {
		t.Errorf("Expected %+v, got %+v", expected, record)
	}
}

func TestNormalizerRunWithoutRatingOrComment(t *testing.T) {
	normalizer, classifier := newTestNormalizer(t)

	raw := RawRecord{
		Title:       "想读某本书",
		Link:        "https://book.douban.com/subject/999/",
		PublishedAt: "Wed, 12 Feb 2026 12:00:00 GMT",
		Description: "标记了想读",
	}
	rule, _ := classifier.Run(raw.Title)
	record := normalizer.Run(raw, rule)

	if record.Rating != "" {
		t.Errorf("Expected empty rating, got %q", record.Rating)
	}
	if record.Comment != "" {
		t.Errorf("Expected empty comment, got %q", record.Comment)
	}
	if record.Status != "想读" {
		t.Errorf("Expected status 想读, got %s", record.Status)
	}
}

func TestNormalizerRating(t *testing.T) {
	normalizer, _ := newTestNormalizer(t)

	tests := []struct {
		description string
		expected    string
	}{
		{"推荐: 力荐", "★★★★★"},
		{"推荐: 推荐", "★★★★"},
		{"推荐: 还行", "★★★"},
		{"推荐: 较差", "★★"},
		{"推荐: 很差", "★"},
		{"推荐：力荐", "★★★★★"},
		{"推荐:　还行", "★★★"},
		{"推荐:力荐\n短评: 好", "★★★★★"},
		{"力荐", ""},
		{"推荐: 一般", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizer.Rating(tt.description); got != tt.expected {
			t.Errorf("Rating(%q) = %q, expected %q", tt.description, got, tt.expected)
		}
	}
}

func TestNormalizerComment(t *testing.T) {
	normalizer, _ := newTestNormalizer(t)

	tests := []struct {
		description string
		expected    string
	}{
		{"推荐: 力荐 短评: 好书", "好书"},
		{"推荐: 推荐\n短评: 值得一看\n其他", "值得一看"},
		{"短评：全角冒号，保留标点", "全角冒号，保留标点"},
		{`短评: 包含"引号"和,逗号`, `包含"引号"和,逗号`},
		{"短评:", ""},
		{"推荐: 力荐", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizer.Comment(tt.description); got != tt.expected {
			t.Errorf("Comment(%q) = %q, expected %q", tt.description, got, tt.expected)
		}
	}
}

func TestNormalizerDate(t *testing.T) {
	normalizer, _ := newTestNormalizer(t)

	tests := []struct {
		input    string
		expected string
	}{
		{"Mon, 10 Feb 2026 12:00:00 GMT", "2026-02-10"},
		{"Tue, 11 Feb 2026 23:30:00 +0000", "2026-02-11"},
		{"2026-02-12T10:00:00Z", "2026-02-12"},
		{"not a date", ""},
		{"Mon,", ""},
		{"1:2:3:4:5", ""},
		{"1.2.3.4", ""},
		{"2026-02-13", "2026-02-13"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizer.Date(tt.input); got != tt.expected {
			t.Errorf("Date(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizerDateUsesLocation(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	normalizer := NewNormalizer(DefaultProfile(), shanghai)
	if got := normalizer.Date("Mon, 10 Feb 2026 20:00:00 GMT"); got != "2026-02-11" {
		t.Errorf("Expected local calendar date 2026-02-11, got %s", got)
	}
}

func TestNormalizerName(t *testing.T) {
	normalizer, classifier := newTestNormalizer(t)

	tests := []struct {
		title    string
		expected string
	}{
		{"读过 测试书 ", "测试书"},
		{"最近在读测试书B", "测试书B"},
		{`读过"引号,逗号"测试`, `"引号,逗号"测试`},
		{"看过看过的电影", "看过的电影"},
	}

	for _, tt := range tests {
		rule, ok := classifier.Run(tt.title)
		if !ok {
			t.Fatalf("Expected %q to classify", tt.title)
		}
		if got := normalizer.Name(tt.title, rule); got != tt.expected {
			t.Errorf("Name(%q) = %q, expected %q", tt.title, got, tt.expected)
		}
	}
}
