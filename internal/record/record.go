// Package record synthesizes structured records and renders them in the
// tag-delimited text form stored inside archive entries.
package record

import (
	"strconv"
	"strings"

	"github.com/zipcorpus/zipcorpus/pkg/types"
)

// Source is the pseudo-random source a Synthesizer draws from.
// *token.Generator implements it.
type Source interface {
	Generate(length int) string
	Intn(lo, hi int) int
}

// Synthesizer builds records from caller-supplied identifiers.
// It consumes draws from its Source in a fixed order: the level, the child
// count, then each child name.
type Synthesizer struct {
	src        Source
	nameLength int
}

// NewSynthesizer creates a synthesizer producing child names of nameLength characters.
func NewSynthesizer(src Source, nameLength int) *Synthesizer {
	return &Synthesizer{
		src:        src,
		nameLength: nameLength,
	}
}

// Build draws a level and children for id and returns the record.
func (s *Synthesizer) Build(id string) types.Record {
	level := s.src.Intn(types.MinLevel, types.MaxLevel)
	n := s.src.Intn(types.MinChildren, types.MaxChildren)

	children := make([]string, n)
	for i := range children {
		children[i] = s.src.Generate(s.nameLength)
	}

	return types.Record{
		ID:       id,
		Level:    level,
		Children: children,
	}
}

// Synthesize builds a record for id and returns its text form.
func (s *Synthesizer) Synthesize(id string) string {
	return Render(s.Build(id))
}

// Render returns the text form of a record:
//
//	<root>
//		<var name='id' value='{id}'/>
//		<var name='level' value='{level}'/>
//		<objects>
//			<object name='{name}'/>
//		</objects>
//	</root>
func Render(r types.Record) string {
	var b strings.Builder
	b.Grow(96 + len(r.ID) + len(r.Children)*(24+16))

	b.WriteString("<root>\n")
	b.WriteString("\t<var name='id' value='")
	b.WriteString(r.ID)
	b.WriteString("'/>\n")
	b.WriteString("\t<var name='level' value='")
	b.WriteString(strconv.Itoa(r.Level))
	b.WriteString("'/>\n")
	b.WriteString("\t<objects>\n")
	for _, name := range r.Children {
		b.WriteString("\t\t<object name='")
		b.WriteString(name)
		b.WriteString("'/>\n")
	}
	b.WriteString("\t</objects>\n")
	b.WriteString("</root>\n")

	return b.String()
}
