package parsers

import (
	"errors"
	"reflect"
	"testing"

	"github.com/haasonsaas/llmexperiment/pkg/models"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		present bool
		reason  error
	}{
		{"12abc", 12, true, nil},
		{"-5", -5, true, nil},
		{"The answer is 42.", 42, true, nil},
		{"a-5", -5, true, nil},
		{"5-", 5, true, nil},
		{"3 or 4", 3, true, nil},
		{"0", 0, true, nil},
		{"-", 0, false, ErrNoNumber},
		{"--5", 0, false, ErrNoNumber},
		{"no digits here", 0, false, ErrNoNumber},
		{"", 0, false, ErrNotText},
		{"99999999999999999999999", 0, false, ErrOutOfRange},
		{"العمر ٣٤ سنة", 34, true, nil},
		{"-۷", -7, true, nil},
		{"score: १०", 10, true, nil},
		{"ｆｕｌｌｗｉｄｔｈ １２", 12, true, nil},
		{"𝟗𝟘", 90, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseInt(models.Present(tt.input), nil)
			if got.IsPresent() != tt.present {
				t.Fatalf("IsPresent() = %v, want %v (reason %v)", got.IsPresent(), tt.present, got.Reason())
			}
			if tt.present {
				if v, _ := got.Get(); v != tt.want {
					t.Errorf("value = %v, want %d", v, tt.want)
				}
				return
			}
			if !errors.Is(got.Reason(), tt.reason) {
				t.Errorf("reason = %v, want %v", got.Reason(), tt.reason)
			}
		})
	}
}

func TestParseInt_NonText(t *testing.T) {
	for _, in := range []models.Value{models.Absent(nil), models.Present(12)} {
		if got := ParseInt(in, nil); got.IsPresent() {
			t.Errorf("ParseInt(%v) should be absent", in)
		}
	}
}

func TestParseIntInScale(t *testing.T) {
	bounds := Params{"scale_min": 1, "scale_max": 5}
	tests := []struct {
		name    string
		input   string
		params  Params
		want    int
		present bool
		reason  error
	}{
		{"above max", "7", bounds, 0, false, ErrOutOfScale},
		{"inside", "3", bounds, 3, true, nil},
		{"min inclusive", "1", bounds, 1, true, nil},
		{"max inclusive", "5", bounds, 5, true, nil},
		{"below min", "0", bounds, 0, false, ErrOutOfScale},
		{"min only", "100", Params{"scale_min": 1}, 100, true, nil},
		{"max only", "-3", Params{"scale_max": 5}, -3, true, nil},
		{"no bounds", "8", nil, 8, true, nil},
		{"float bound", "4", Params{"scale_max": 4.0}, 4, true, nil},
		{"int64 bound", "2", Params{"scale_min": int64(3)}, 0, false, ErrOutOfScale},
		{"string bound", "3", Params{"scale_min": "one"}, 0, false, ErrInvalidParam},
		{"fractional bound", "3", Params{"scale_max": 4.5}, 0, false, ErrInvalidParam},
		{"no number", "none", bounds, 0, false, ErrNoNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIntInScale(models.Present(tt.input), tt.params)
			if got.IsPresent() != tt.present {
				t.Fatalf("IsPresent() = %v, want %v (reason %v)", got.IsPresent(), tt.present, got.Reason())
			}
			if tt.present {
				if v, _ := got.Get(); v != tt.want {
					t.Errorf("value = %v, want %d", v, tt.want)
				}
				return
			}
			if !errors.Is(got.Reason(), tt.reason) {
				t.Errorf("reason = %v, want %v", got.Reason(), tt.reason)
			}
		})
	}
}

func TestParseYesOrNo(t *testing.T) {
	tests := []struct {
		input   string
		params  Params
		want    any
		present bool
	}{
		{"Yeah!", nil, AnswerYes, true},
		{"nope", nil, AnswerNo, true},
		{"banana", nil, nil, false},
		{"banana", Params{"default": "unknown"}, "unknown", true},
		{"  OK  ", nil, AnswerYes, true},
		{"YES", nil, AnswerYes, true},
		{"No, thanks.", nil, AnswerNo, true},
		{"true.", nil, AnswerYes, true},
		{"Sure thing", nil, AnswerYes, true},
		{"0", nil, AnswerNo, true},
		{"+", nil, AnswerYes, true},
		{"-", nil, AnswerNo, true},
		{"nothing", nil, nil, false},
		{"yesterday", nil, nil, false},
		{"Absolutely not", nil, AnswerYes, true},
		{"Declined", nil, AnswerNo, true},
		{"", Params{"default": "n/a"}, "n/a", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseYesOrNo(models.Present(tt.input), tt.params)
			if got.IsPresent() != tt.present {
				t.Fatalf("IsPresent() = %v, want %v", got.IsPresent(), tt.present)
			}
			if v, _ := got.Get(); tt.present && v != tt.want {
				t.Errorf("value = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestParseYesOrNo_AbsentInputUsesDefault(t *testing.T) {
	got := ParseYesOrNo(models.Absent(errors.New("no reply")), Params{"default": "no"})
	if v, ok := got.Get(); !ok || v != "no" {
		t.Errorf("got %v, %v; want default", v, ok)
	}

	got = ParseYesOrNo(models.Absent(nil), nil)
	if got.IsPresent() || !errors.Is(got.Reason(), ErrNotText) {
		t.Errorf("got %v, reason %v; want absent ErrNotText", got, got.Reason())
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := Default()

	for _, name := range []string{NameInt, NameIntInScale, NameYesOrNo} {
		if _, err := r.Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error: %v", name, err)
		}
	}

	_, err := r.Lookup("parse_float")
	if !errors.Is(err, ErrParserNotFound) {
		t.Errorf("Lookup unknown error = %v, want ErrParserNotFound", err)
	}

	want := []string{NameInt, NameIntInScale, NameYesOrNo}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_ApplyNeverFails(t *testing.T) {
	r := Default()
	r.Register("explode", func(models.Value, Params) models.Value {
		panic("boom")
	})

	got := r.Apply("missing", models.Present("1"), nil)
	if got.IsPresent() || !errors.Is(got.Reason(), ErrParserNotFound) {
		t.Errorf("unknown parser: got reason %v", got.Reason())
	}

	got = r.Apply("explode", models.Present("1"), nil)
	if got.IsPresent() || !errors.Is(got.Reason(), ErrParserPanic) {
		t.Errorf("panicking parser: got reason %v", got.Reason())
	}

	got = r.Apply(NameInt, models.Present("12abc"), nil)
	if v, _ := got.Get(); v != 12 {
		t.Errorf("parse_int via Apply = %v, want 12", v)
	}
}
