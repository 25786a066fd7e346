package renderer

import (
	"io"
)

// SectionPrinter is a helper to conditionally print a header and a footer for a section
// only if content is actually written to it.
type SectionPrinter struct {
	headerFunc       func(io.Writer)
	footerFunc       func(io.Writer)
	hasPrintedHeader bool
}

// Header creates a new SectionPrinter and sets the function that will be called to print the section header.
func Header(f func(io.Writer)) *SectionPrinter {
	return &SectionPrinter{headerFunc: f}
}

// Footer sets the function that will be called to print the section footer.
func (p *SectionPrinter) Footer(f func(io.Writer)) *SectionPrinter {
	p.footerFunc = f
	return p
}

// PrintHeader prints the section header, but only on the first call.
func (p *SectionPrinter) PrintHeader(w io.Writer) {
	if p.hasPrintedHeader {
		return
	}
	p.hasPrintedHeader = true
	if p.headerFunc != nil {
		p.headerFunc(w)
	}
}

// PrintFooter prints the section footer, but only if the header was ever printed.
func (p *SectionPrinter) PrintFooter(w io.Writer) {
	if p.hasPrintedHeader && p.footerFunc != nil {
		p.footerFunc(w)
	}
}
