package quizparse

import "testing"

const wellFormedBlock = `Q1. What is the powerhouse of the cell?
a) Nucleus
b) Mitochondria
c) Ribosome
d) Golgi apparatus
Answer: c`

func TestExtractWellFormedBlock(t *testing.T) {
	got := Extract(wellFormedBlock, 1)
	if len(got) != 1 {
		t.Fatalf("Extract returned %d questions, want 1", len(got))
	}
	q := got[0]
	if q.Prompt != "What is the powerhouse of the cell?" {
		t.Fatalf("unexpected prompt %q", q.Prompt)
	}
	if len(q.Options) != 4 {
		t.Fatalf("got %d options, want 4", len(q.Options))
	}
	if q.Answer != "c" {
		t.Fatalf("got answer %q, want %q", q.Answer, "c")
	}
}

func TestExtractDropsMalformedBlocks(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{
			name: "missing_option_d",
			raw: `Q1. Which organ pumps blood?
a) Liver
b) Heart
c) Kidney
Answer: b`,
			want: 0,
		},
		{
			name: "missing_answer_line",
			raw: `Q1. Which organ pumps blood?
a) Liver
b) Heart
c) Kidney
d) Lung`,
			want: 0,
		},
		{
			name: "answer_not_among_options",
			raw: `Q1. Which organ pumps blood?
a) Liver
b) Heart
c) Kidney
d) Lung
Answer: e`,
			want: 0,
		},
		{
			name: "empty_input",
			raw:  "",
			want: 0,
		},
		{
			name: "prose_without_question_marker",
			raw:  "The heart pumps blood through the body.",
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.raw, 1)
			if len(got) != tc.want {
				t.Fatalf("Extract returned %d questions, want %d", len(got), tc.want)
			}
		})
	}
}

func TestExtractReturnsFewerThanExpected(t *testing.T) {
	raw := `Q1. First question?
a) one
b) two
c) three
d) four
Answer: a

Q2. Second question?
a) one
b) two
Answer: b

Q3. Third question?
a) one
b) two
c) three
d) four
Answer: d`

	got := Extract(raw, 3)
	if len(got) != 2 {
		t.Fatalf("Extract returned %d questions, want 2", len(got))
	}
	if got[0].Answer != "a" || got[1].Answer != "d" {
		t.Fatalf("unexpected answers %q, %q", got[0].Answer, got[1].Answer)
	}
}

func TestExtractVerboseAnswerLine(t *testing.T) {
	raw := `Q1. What is the powerhouse of the cell?
a) Nucleus
b) Mitochondria
c) Ribosome
d) Golgi apparatus
Answer: b) Mitochondria`

	got := Extract(raw, 1)
	if len(got) != 1 {
		t.Fatalf("Extract returned %d questions, want 1", len(got))
	}
	if got[0].Answer != "b" {
		t.Fatalf("got answer %q, want %q", got[0].Answer, "b")
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	first := Extract(wellFormedBlock, 1)
	second := Extract(wellFormedBlock, 1)
	if len(first) != len(second) {
		t.Fatalf("repeat parse size mismatch: %d vs %d", len(first), len(second))
	}
	if first[0].Prompt != second[0].Prompt || first[0].Answer != second[0].Answer {
		t.Fatalf("repeat parse diverged")
	}
}
