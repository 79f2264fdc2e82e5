package document

import "testing"

func TestDetectFieldKind(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		want        FieldKind
	}{
		{
			name:        "citation",
			instruction: ` ADDIN ZOTERO_ITEM CSL_CITATION {"citationID":"abc"} `,
			want:        KindCitation,
		},
		{
			name:        "bibliography",
			instruction: ` ADDIN ZOTERO_BIBL {"uncited":[]} CSL_BIBLIOGRAPHY `,
			want:        KindBibliography,
		},
		{
			name:        "crossref",
			instruction: ` REF _Ref151967248 \h `,
			want:        KindCrossRef,
		},
		{
			name:        "page field ignored",
			instruction: ` PAGE \* MERGEFORMAT `,
			want:        KindUnknown,
		},
		{
			name:        "plain ref without bookmark prefix ignored",
			instruction: ` REF mybookmark \h `,
			want:        KindUnknown,
		},
		{
			name:        "empty",
			instruction: "",
			want:        KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFieldKind(tt.instruction); got != tt.want {
				t.Errorf("DetectFieldKind(%q) = %v, want %v", tt.instruction, got, tt.want)
			}
		})
	}
}

func TestFieldKindString(t *testing.T) {
	tests := []struct {
		kind FieldKind
		want string
	}{
		{KindCitation, "citation"},
		{KindBibliography, "bibliography"},
		{KindCrossRef, "crossref"},
		{KindUnknown, "unknown"},
		{FieldKind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("FieldKind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestStyleFlagsIsZero(t *testing.T) {
	if !(StyleFlags{}).IsZero() {
		t.Error("zero StyleFlags should report IsZero")
	}
	withItalic := StyleFlags{Italic: Flag(true)}
	if withItalic.IsZero() {
		t.Error("StyleFlags with Italic set should not report IsZero")
	}
	withColor := StyleFlags{Color: Flag(16711680)}
	if withColor.IsZero() {
		t.Error("StyleFlags with Color set should not report IsZero")
	}
}
