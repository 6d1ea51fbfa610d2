package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Mouse.move_to(x, y) moves the cursor to the given position",
	"medium": `The Client class wraps a game window. Use get_window_rect to find the
        window bounds, send_key and hold_key for keyboard input and the Mouse
        helper for clicks. Screenshots are taken with capture_window and can be
        searched for a template with locate_on_screen.`,
	"long": strings.Repeat(`Every method that waits for the game accepts a timeout in seconds.
        When the timeout expires the method raises TimeoutError and leaves the
        client in the state it was in before the call. Callbacks registered with
        register_hotkey run on the event loop and must not block. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	n := Default()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = n.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	n := Default()
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = n.Tokenize(text)
		}
	})
}

func BenchmarkStemming(b *testing.B) {
	words := []string{
		"running", "clicking", "searching", "indexing",
		"registered", "callbacks", "screenshots",
		"moves", "windows", "timeouts",
	}
	n := New(Config{Stem: true})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = n.Terms(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	n := Default()
	baseWord := "mouse click move_to get_position keyboard "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = n.Tokenize(text)
			}
		})
	}
}
