package form

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseLabeledForm(t *testing.T) {
	text := "Nama, Domisili: Budi, Jakarta\n" +
		"Sumber info: Instagram\n" +
		"Jenis bisnis: F&B\n" +
		"Budget: 100 juta\n" +
		"Rencana mulai: 3 bulan lagi"

	got := Parse(text)
	want := Fragment{
		Biodata:      "Budi, Jakarta",
		SourceInfo:   "Instagram",
		BusinessType: "F&B",
		Budget:       "100 juta",
		StartPlan:    "3 bulan lagi",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestParsePartial(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Fragment
	}{
		{
			name: "labels only, alternate wording",
			text: "nama: Siti\nmodal: Rp 50.000.000",
			want: Fragment{Biodata: "Siti", Budget: "Rp 50.000.000"},
		},
		{
			name: "budget from free text juta",
			text: "saya punya sekitar 250 juta untuk usaha ini",
			want: Fragment{Budget: "250 juta"},
		},
		{
			name: "source keyword fallback",
			text: "Saya tahu dari instagram. Mau mulai bulan depan",
			want: Fragment{
				SourceInfo: "Saya tahu dari instagram",
				StartPlan:  "Mau mulai bulan depan",
			},
		},
		{
			name: "empty value after label is skipped",
			text: "Budget:\nNama: Andi",
			want: Fragment{Biodata: "Andi"},
		},
		{
			name: "no fields at all",
			text: "halo kak",
			want: Fragment{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Parse(%q):\n got  %+v\n want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseBudgetShapes(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"budget saya 1,5 milyar", "1,5 milyar"},
		{"sekitar 100jt", "100jt"},
		{"100 jt", "100 jt"},
		{"Rp 75.000.000", "Rp 75.000.000"},
		{"rp. 200 juta", "rp. 200 juta"},
	}
	for _, tt := range tests {
		got := Parse(tt.text).Budget
		if got != tt.want {
			t.Errorf("Parse(%q).Budget = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMergePartialWins(t *testing.T) {
	existing := Fragment{Biodata: "Budi, Jakarta", Budget: "100 juta"}
	partial := Fragment{Budget: "200 juta", SourceInfo: "Instagram"}

	got := Merge(existing, partial)
	want := Fragment{Biodata: "Budi, Jakarta", Budget: "200 juta", SourceInfo: "Instagram"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge:\n got  %+v\n want %+v", got, want)
	}
}

func TestValidate(t *testing.T) {
	full := Fragment{
		Biodata:      "Budi, Jakarta",
		SourceInfo:   "Instagram",
		BusinessType: "F&B",
		Budget:       "100 juta",
		StartPlan:    "3 bulan lagi",
	}

	res := Validate(full, Fragment{})
	if !res.Valid || len(res.Missing) != 0 {
		t.Fatalf("full fragment should be valid, got %+v", res)
	}

	res = Validate(Fragment{Biodata: "Budi"}, Fragment{Budget: "100 juta"})
	if res.Valid {
		t.Fatal("partial fragment should not be valid")
	}
	wantMissing := []string{FieldSourceInfo, FieldBusinessType, FieldStartPlan}
	if !reflect.DeepEqual(res.Missing, wantMissing) {
		t.Fatalf("Missing = %v, want %v", res.Missing, wantMissing)
	}
}

func TestExplainMissing(t *testing.T) {
	got := ExplainMissing([]string{FieldBudget, FieldStartPlan})
	if !strings.Contains(got, "Budget") || !strings.Contains(got, "Rencana mulai") {
		t.Fatalf("checklist missing labels: %q", got)
	}
	if !strings.HasPrefix(got, "Mohon lengkapi data berikut") {
		t.Fatalf("unexpected preamble: %q", got)
	}
	if ExplainMissing(nil) != "" {
		t.Fatal("empty missing list should render empty string")
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	fragments := []Fragment{
		{
			Biodata:      "Budi, Jakarta",
			SourceInfo:   "Instagram",
			BusinessType: "F&B",
			Budget:       "100 juta",
			StartPlan:    "3 bulan lagi",
		},
		{Biodata: "Siti, Bandung", Budget: "Rp 50.000.000"},
		{SourceInfo: "Referral teman"},
	}
	for _, f := range fragments {
		got := Parse(Format(f))
		if !reflect.DeepEqual(got, f) {
			t.Errorf("round trip failed:\n in   %+v\n out  %+v\n text %q", f, got, Format(f))
		}
	}
}

func TestIsFormSubmission(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Nama: Budi", true},
		{"budget dan rencana mulai sudah ada", true},
		{"halo", false},
		{"berapa harganya?", false},
	}
	for _, tt := range tests {
		if got := IsFormSubmission(tt.text); got != tt.want {
			t.Errorf("IsFormSubmission(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
