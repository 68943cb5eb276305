package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Line
	}{
		{
			name: "plain text splits into sentences",
			in:   "Hello there. How are you? Fine!",
			want: []Line{{Say: "Hello there."}, {Say: "How are you?"}, {Say: "Fine!"}},
		},
		{
			name: "tags carry the following speech",
			in:   "[look-right] Look over here. [look-at-user] See?",
			want: []Line{{Do: "look-right", Say: "Look over here."}, {Say: "See?"}},
		},
		{
			name: "leading speech before the first tag",
			in:   "Hi. [smile] Nice to meet you.",
			want: []Line{{Say: "Hi."}, {Do: "smile", Say: "Nice to meet you."}},
		},
		{
			name: "tag without speech",
			in:   "[wink]",
			want: []Line{{Do: "wink"}},
		},
		{
			name: "link follow-up",
			in:   `[point-right and link "https://example.com" "_blank"] Go there.`,
			want: []Line{{Do: "point-right", Say: "Go there.", And: AndLink, URL: "https://example.com", Target: "_blank"}},
		},
		{
			name: "command follow-up",
			in:   `[greet and command "wave"] Hi.`,
			want: []Line{{Do: "greet", Say: "Hi.", And: AndCommand, Value: "wave"}},
		},
		{
			name: "follow-up without arguments",
			in:   `[think and run]`,
			want: []Line{{Do: "think", And: "run"}},
		},
		{
			name: "non-behavior tags stay in speech",
			in:   "[happy] I said [spoken]hi[/spoken] twice.",
			want: []Line{{Do: "happy", Say: "I said [spoken]hi[/spoken] twice."}},
		},
		{
			name: "unterminated tag ends the script",
			in:   "Hello. [look-left",
			want: []Line{{Say: "Hello."}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromText(tt.in))
		})
	}
}

func TestFromText_Empty(t *testing.T) {
	assert.Empty(t, FromText(""))
	assert.Empty(t, FromText("   "))
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("[look-left] hi"))
	assert.True(t, IsScript("a [thumbs-up]"))
	assert.False(t, IsScript("[spoken]hi[/spoken]"))
	assert.False(t, IsScript("look-left"))
}

func TestSentenceSplit(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two!!", "Three?", "Four"}, SentenceSplit("One. Two!!  Three? Four"))
	assert.Equal(t, []string{"v1.2 is out."}, SentenceSplit("v1.2 is out."))
	assert.Empty(t, SentenceSplit(""))
}

func TestTranscript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello world", "Hello world"},
		{"[written]Dr.[/written][spoken]Doctor[/spoken] Smith", "Dr. Smith"},
		{"[cmd] Hi [pause] there ", "Hi there"},
		{"[spoken]only spoken[/spoken]", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transcript(tt.in), tt.in)
	}
}

func TestHasSpeech(t *testing.T) {
	assert.True(t, HasSpeech("hello"))
	assert.True(t, HasSpeech("[pause] hi"))
	assert.False(t, HasSpeech(""))
	assert.False(t, HasSpeech("  [pause] [beep]  "))
}
