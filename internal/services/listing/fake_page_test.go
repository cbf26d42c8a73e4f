package listing

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// fakePage records every interaction and serves scripted answers
type fakePage struct {
	mu sync.Mutex

	calls    []string
	uploaded []string
	values   map[string]string
	selected []string
	counted  map[string]int

	thumbs      int
	afterSubmit string
	current     string
	html        string
	setFilesErr error
	clickPanics bool
	navigateErr error
	fileExisted []bool
}

func newFakePage() *fakePage {
	return &fakePage{
		values:      make(map[string]string),
		counted:     make(map[string]int),
		current:     "https://www.vinted.fr/items/new",
		afterSubmit: "https://www.vinted.fr/items/4242-robe-en-lin?referrer=upload",
	}
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.current = url
	return nil
}

func (p *fakePage) WaitReady(ctx context.Context) error { return nil }

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counted[selector]++
	if selector == `input[type="file"]` {
		return 1, nil
	}
	return p.thumbs, nil
}

func (p *fakePage) SetFiles(ctx context.Context, selector string, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("upload %d", len(paths))
	for _, path := range paths {
		_, err := os.Stat(path)
		p.fileExisted = append(p.fileExisted, err == nil)
	}
	if p.setFilesErr != nil {
		return p.setFilesErr
	}
	p.uploaded = append(p.uploaded, paths...)
	p.thumbs++
	return nil
}

func (p *fakePage) SetValue(ctx context.Context, selector string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set %s", selector)
	p.values[selector] = value
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %s", selector)
	if p.clickPanics {
		panic("page crashed")
	}
	if selector == testSubmitSelector && p.afterSubmit != "" {
		p.current = p.afterSubmit
	}
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, trigger string, option string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("select %s", option)
	p.selected = append(p.selected, option)
	return nil
}

func (p *fakePage) uploadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if len(c) > 6 && c[:6] == "upload" {
			n++
		}
	}
	return n
}
