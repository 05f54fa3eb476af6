package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rubiojr/quack/pkg/client"
	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/pagination"
	"github.com/rubiojr/quack/pkg/search"
	"github.com/rubiojr/quack/pkg/store"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the web through the quack server",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Results page to show",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "post",
				Usage: "Send the query in a POST body instead of the URL",
			},
			serverFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query, err := search.ValidateQuery(strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c, cfg)
			if err != nil {
				return err
			}
			var backend store.Backend = cl
			if c.Bool("post") {
				backend = postBackend{cl}
			}
			return runSearch(ctx, store.New(backend), query, int(c.Int("page")))
		},
	}
}

// postBackend sends searches as POST /search so long queries stay out of
// proxy and access logs.
type postBackend struct {
	*client.Client
}

func (p postBackend) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	return p.SearchPost(ctx, query)
}

func runSearch(ctx context.Context, st *store.Store, query string, page int) error {
	if err := st.Search(ctx, query); err != nil {
		fmt.Println(errorStyle.Render(store.SearchFailedMessage))
		return err
	}

	if page != 1 && !st.SetCurrentPage(page) {
		return fmt.Errorf("page %d is out of range (1-%d)", page, max(1, st.TotalPages()))
	}

	fmt.Print(renderResults(st.Snapshot(), st.PageResults(), st.TotalPages()))
	return nil
}

// renderResults formats one page of results followed by the page bar.
func renderResults(state store.State, page []core.SearchResult, totalPages int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Results for %q", state.Query)))
	b.WriteString("\n")

	if len(state.Results) == 0 {
		b.WriteString(metaStyle.Render("No results found."))
		b.WriteString("\n")
		return b.String()
	}

	offset := (state.CurrentPage - 1) * pagination.PageSize
	for i, r := range page {
		fmt.Fprintf(&b, "%2d. %s\n    %s\n", offset+i+1, highlightTitle(r.Title, state.Query), urlStyle.Render(r.URL))
	}

	b.WriteString("\n")
	b.WriteString(renderPageBar(state.CurrentPage, totalPages))
	fmt.Fprintf(&b, "  %s\n", metaStyle.Render(fmt.Sprintf("%d results", len(state.Results))))
	return b.String()
}

func renderPageBar(current, total int) string {
	pages := pagination.VisiblePages(current, total)
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		label := strconv.Itoa(p)
		if p == current {
			parts = append(parts, currentPageStyle.Render(label))
			continue
		}
		parts = append(parts, metaStyle.Render(label))
	}
	return strings.Join(parts, " ")
}
