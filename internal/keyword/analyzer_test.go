package keyword

import (
	"reflect"
	"testing"
)

func TestAnalyzer_Tokens(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	got := a.Tokens("The Quick brown fox, 42 jumps over a lazy dog!")
	want := []string{"quick", "brown", "fox", "jumps", "lazy", "dog"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}

func TestAnalyzer_NormalizesCompatibilityForms(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	// Full-width letters fold to ASCII under NFKC.
	got := a.Tokens("Ｇｒａｐｈ graph")
	if len(got) != 2 || got[0] != "graph" || got[1] != "graph" {
		t.Errorf("Tokens = %v, want [graph graph]", got)
	}
}

func TestAnalyzer_Empty(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	if got := a.Tokens(""); len(got) != 0 {
		t.Errorf("Tokens(\"\") = %v", got)
	}
	if got := a.Tokens("the and of 12 3.5"); len(got) != 0 {
		t.Errorf("stop words and numbers should be dropped, got %v", got)
	}
}

func TestAnalyzer_KeepsNumberLikeWords(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	got := a.Tokens("NaN inf infinity 1,000 3.14 0x1p4")
	want := []string{"nan", "inf", "infinity", "0x1p4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %v, want %v", got, want)
	}
}

func TestIsNumber(t *testing.T) {
	tests := map[string]bool{
		"42":       true,
		"3.5":      true,
		"1,000":    true,
		"٣":        true,
		"nan":      false,
		"inf":      false,
		"infinity": false,
		"1e10":     false,
		"v2":       false,
		".":        false,
	}
	for s, want := range tests {
		if got := isNumber(s); got != want {
			t.Errorf("isNumber(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestAnalyzer_Entities(t *testing.T) {
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	got := a.Entities("Notes on Apache Kafka and ZooKeeper. Raft is used by etcd.\nThe Raft paper")
	want := []string{"apache kafka", "raft", "zookeeper"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Entities = %v, want %v", got, want)
	}
	if got := a.Entities("lowercase text only. Single"); len(got) != 0 {
		t.Errorf("sentence-case words are not entities, got %v", got)
	}
}
