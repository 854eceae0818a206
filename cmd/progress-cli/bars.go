package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"

	"github.com/lexoliu/progressor/progress"
)

// bars draws one terminal progress bar per job run.
type bars struct {
	mu  sync.Mutex
	out io.Writer
}

func newBars() *bars {
	return &bars{out: ansi.NewAnsiStdout()}
}

// observer matches jobs.ObserverFactory.
func (b *bars) observer(job string) func(progress.Update) {
	var bar *progressbar.ProgressBar

	return func(u progress.Update) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions64(
				int64(u.Total()),
				progressbar.OptionSetWriter(b.out),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetTheme(progressbar.ThemeASCII),
				progressbar.OptionFullWidth(),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(describe(job, u)),
			)
		}

		bar.Describe(describe(job, u))
		switch u.State() {
		case progress.Completed:
			_ = bar.Finish()
			fmt.Fprintln(b.out)
		case progress.Cancelled:
			_ = bar.Set64(int64(u.Current()))
			_ = bar.Exit()
			fmt.Fprintln(b.out)
		default:
			_ = bar.Set64(int64(u.Current()))
		}
	}
}

func describe(job string, u progress.Update) string {
	desc := fmt.Sprintf("[cyan]%s[reset]", job)
	switch u.State() {
	case progress.Paused:
		desc += " [yellow]paused[reset]"
	case progress.Cancelled:
		desc += " [red]cancelled[reset]"
	}
	if msg, ok := u.Message(); ok {
		desc += " " + msg
	}
	return desc
}
