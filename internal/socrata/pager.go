package socrata

import (
	"context"
	"time"
)

// Pager walks the source one page at a time. A page shorter than the
// requested size signals end-of-data. Pagers are not restartable; a fresh
// run builds a new one.
type Pager struct {
	client *Client
	query  Query
	delay  time.Duration

	offset int
	done   bool
	first  bool
}

// NewPager builds a Pager over the given window. delay is the pause between
// successive page requests.
func NewPager(client *Client, query Query, delay time.Duration) *Pager {
	return &Pager{
		client: client,
		query:  query,
		delay:  delay,
		first:  true,
	}
}

// Next fetches the next page. It returns (nil, nil) after the final page.
func (p *Pager) Next(ctx context.Context) ([]Record, error) {
	if p.done {
		return nil, nil
	}
	if !p.first && p.delay > 0 {
		if err := sleepCtx(ctx, p.delay); err != nil {
			return nil, err
		}
	}
	p.first = false

	page, err := p.client.FetchPage(ctx, p.query, p.offset)
	if err != nil {
		return nil, err
	}
	p.offset += p.query.PageSize
	if len(page) < p.query.PageSize {
		p.done = true
	}
	if len(page) == 0 {
		return nil, nil
	}
	return page, nil
}

// Offset reports how many records have been requested so far.
func (p *Pager) Offset() int {
	return p.offset
}
