package common

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitList(t *testing.T) {
	got := SplitLists([]string{"01646500, 01010000", "", "K0010010 410730,"})
	want := []string{"01646500", "01010000", "K0010010", "410730"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLists = %v, want %v", got, want)
	}
	if got := SplitList(" , "); len(got) != 0 {
		t.Errorf("SplitList(blank) = %v, want empty", got)
	}
}

func TestReadLines(t *testing.T) {
	got, err := ReadLines(strings.NewReader("# sites\n01646500\n\n  01010000  \n"))
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	want := []string{"01646500", "01010000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadLines = %v, want %v", got, want)
	}
}
