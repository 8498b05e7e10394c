// Package sse decodes the server-sent-event stream produced by an
// OpenAI-compatible chat-completion endpoint into plain text fragments.
package sse

import (
	"bytes"
	"encoding/json"
	"io"
)

const dataPrefix = "data: "

const doneSentinel = "[DONE]"

type frame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder incrementally parses `data: <json>` frames from a byte stream and
// yields each frame's choices[0].delta.content. It buffers raw bytes, so
// chunk boundaries may fall anywhere, including inside a multi-byte character
// or in the middle of a line. A Decoder reads its input exactly once and is
// not restartable; create a fresh one per request.
type Decoder struct {
	r       io.Reader
	buf     []byte
	scratch []byte
	atEOF   bool
	done    bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, scratch: make([]byte, 4096)}
}

// Next returns the next non-empty content fragment. It returns io.EOF once
// the stream is exhausted or the [DONE] sentinel was seen, and any underlying
// read error otherwise. Fragments come back strictly in arrival order.
func (d *Decoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}

	for {
	lines:
		for {
			i := bytes.IndexByte(d.buf, '\n')
			if i < 0 {
				break
			}

			line := d.buf[:i]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}

			if len(line) > 0 && line[0] == ':' || len(bytes.TrimSpace(line)) == 0 {
				d.buf = d.buf[i+1:]
				continue
			}

			if !bytes.HasPrefix(line, []byte(dataPrefix)) {
				d.buf = d.buf[i+1:]
				continue
			}

			payload := bytes.TrimSpace(line[len(dataPrefix):])
			if string(payload) == doneSentinel {
				d.done = true
				return "", io.EOF
			}

			var f frame
			if err := json.Unmarshal(payload, &f); err != nil {
				// The payload may still be incomplete if upstream framing
				// misbehaved. Leave the buffer untouched and wait for more
				// bytes; at stream end the line is dropped silently.
				break lines
			}

			d.buf = d.buf[i+1:]
			if len(f.Choices) > 0 && f.Choices[0].Delta.Content != "" {
				return f.Choices[0].Delta.Content, nil
			}
		}

		if d.atEOF {
			d.done = true
			return "", io.EOF
		}

		n, err := d.r.Read(d.scratch)
		if n > 0 {
			d.buf = append(d.buf, d.scratch[:n]...)
		}
		if err == io.EOF {
			d.atEOF = true
		} else if err != nil {
			d.done = true
			return "", err
		}
	}
}
