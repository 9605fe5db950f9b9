package archive

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one completed task's transcript. Records are immutable once
// appended; rebalancing relocates them between tiers as opaque byte ranges.
type Record struct {
	TaskID      string
	SessionID   string
	Timestamp   time.Time
	Instruction string
	Result      string
}

// Delimiter terminates every human-readable record block.
const Delimiter = "---\n\n"

// Each block is preceded by a frame line carrying its byte length, so the
// splitter never has to search for Delimiter inside free-form text.
const (
	framePrefix = "<!-- gitclauder:record bytes="
	frameSuffix = " -->\n"
)

// Block renders the human-readable form of r:
//
//	## [Task <id>] <timestamp> (SessionID: <sid>)
//
//	### Instruction
//	<instruction>
//
//	### Result
//	<result>
//
//	---
func (r Record) Block() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [Task %s] %s (SessionID: %s)\n\n", r.TaskID, r.Timestamp.UTC().Format(time.RFC3339), r.SessionID)
	b.WriteString("### Instruction\n")
	b.WriteString(r.Instruction)
	b.WriteString("\n\n### Result\n")
	b.WriteString(r.Result)
	b.WriteString("\n\n")
	b.WriteString(Delimiter)
	return b.String()
}

// Encode returns the framed on-disk form of r.
func Encode(r Record) []byte {
	block := r.Block()
	var buf bytes.Buffer
	buf.Grow(len(framePrefix) + len(frameSuffix) + 12 + len(block))
	buf.WriteString(framePrefix)
	buf.WriteString(strconv.Itoa(len(block)))
	buf.WriteString(frameSuffix)
	buf.WriteString(block)
	return buf.Bytes()
}

// Split cuts tier content into discrete record chunks, oldest first. Each
// chunk is the exact byte range of one record, frame included, so chunks can
// be moved between tiers untouched.
//
// Framed records are cut by their declared length. Content without a frame
// (archives written before framing, or a damaged frame) is cut after each
// Delimiter.
func Split(data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		if n, hdr, ok := parseFrame(data); ok {
			end := hdr + n
			chunks = append(chunks, data[:end])
			data = data[end:]
			continue
		}

		idx := bytes.Index(data, []byte(Delimiter))
		if idx < 0 {
			if len(bytes.TrimSpace(data)) > 0 {
				chunks = append(chunks, data)
			}
			break
		}
		end := idx + len(Delimiter)
		chunks = append(chunks, data[:end])
		data = data[end:]
	}
	return chunks
}

// parseFrame reads a frame line at the start of data. It returns the declared
// block length and the header length when the frame is well formed and the
// whole block is present.
func parseFrame(data []byte) (n, hdr int, ok bool) {
	if !bytes.HasPrefix(data, []byte(framePrefix)) {
		return 0, 0, false
	}
	rest := data[len(framePrefix):]
	end := bytes.Index(rest, []byte(frameSuffix))
	if end <= 0 || end > 20 {
		return 0, 0, false
	}
	n, err := strconv.Atoi(string(rest[:end]))
	if err != nil || n < 0 {
		return 0, 0, false
	}
	hdr = len(framePrefix) + end + len(frameSuffix)
	if hdr+n > len(data) {
		return 0, 0, false
	}
	return n, hdr, true
}

// Unframe strips the frame line from a chunk, returning the readable block.
func Unframe(chunk []byte) []byte {
	if _, hdr, ok := parseFrame(chunk); ok {
		return chunk[hdr:]
	}
	return chunk
}
