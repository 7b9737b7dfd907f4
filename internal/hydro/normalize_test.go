package hydro

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMapArgument(t *testing.T) {
	m := Mapping{"discharge": "00060", "stage": "00065"}

	got, err := MapArgument("variable", []string{"discharge", "stage"}, m)
	if err != nil {
		t.Fatalf("MapArgument: %v", err)
	}
	if strings.Join(got, ",") != "00060,00065" {
		t.Errorf("got %v, want [00060 00065]", got)
	}
}

func TestMapArgumentUnknownValue(t *testing.T) {
	m := Mapping{"discharge": "00060", "stage": "00065"}

	_, err := MapArgument("variable", []string{"temperature"}, m)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Value != "temperature" {
		t.Errorf("Value = %q, want temperature", ve.Value)
	}
	if strings.Join(ve.Valid, ",") != "discharge,stage" {
		t.Errorf("Valid = %v, want [discharge stage]", ve.Valid)
	}
	if !strings.Contains(err.Error(), "discharge, stage") {
		t.Errorf("message %q does not list valid values", err.Error())
	}
}

func TestMapArgumentEmptyMappingPassesThrough(t *testing.T) {
	got, err := MapArgument("frequency", []string{"anything"}, nil)
	if err != nil {
		t.Fatalf("MapArgument: %v", err)
	}
	if len(got) != 1 || got[0] != "anything" {
		t.Errorf("got %v, want [anything]", got)
	}
}

func TestNormalizerMapsVariablesElementwise(t *testing.T) {
	n := Normalizer{
		Variables:   Mapping{"discharge": "00060", "stage": "00065"},
		Frequencies: Mapping{"daily": "dv"},
		Statistics:  Mapping{"mean": "00003"},
	}
	args, err := n.Normalize(Query{Variables: []string{"stage", "discharge"}, Frequency: "daily", Statistic: "mean"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if strings.Join(args.Variables, ",") != "00065,00060" || args.Frequency != "dv" || args.Statistic != "00003" {
		t.Errorf("args = %+v", args)
	}

	if _, err := n.Normalize(Query{Variables: []string{"discharge"}, Statistic: "median"}); !IsValidation(err) {
		t.Errorf("unknown statistic: err = %v, want ValidationError", err)
	}
}

func TestNormalizerRejectsStartAfterEnd(t *testing.T) {
	n := Normalizer{}
	_, err := n.Normalize(Query{
		Start: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestNormalizerOpenBounds(t *testing.T) {
	n := Normalizer{Frequencies: Mapping{"daily": "dv"}}
	args, err := n.Normalize(Query{Frequency: "daily", End: time.Now()})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if args.Frequency != "dv" {
		t.Errorf("Frequency = %q, want dv", args.Frequency)
	}
	if !args.Start.IsZero() {
		t.Errorf("Start = %v, want zero", args.Start)
	}
}

func TestRequireTimes(t *testing.T) {
	if err := RequireTimes(time.Time{}, time.Now()); !IsValidation(err) {
		t.Errorf("missing start: err = %v", err)
	}
	if err := RequireTimes(time.Now(), time.Time{}); !IsValidation(err) {
		t.Errorf("missing end: err = %v", err)
	}
	if err := RequireTimes(time.Now(), time.Now()); err != nil {
		t.Errorf("both set: err = %v", err)
	}
}

func TestParseWriteMode(t *testing.T) {
	tests := []struct {
		in   string
		want WriteMode
	}{
		{"", WriteReject},
		{"overwrite", WriteOverwrite},
		{"APPEND", WriteAppend},
	}
	for _, tt := range tests {
		got, err := ParseWriteMode(tt.in)
		if err != nil {
			t.Errorf("ParseWriteMode(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWriteMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseWriteMode("truncate"); !IsValidation(err) {
		t.Errorf("ParseWriteMode(truncate) err = %v", err)
	}
}
