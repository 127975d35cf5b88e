package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
)

// filterChunk is how many documents are evaluated per progress step.
const filterChunk = 64

// filterOutput is the JSON output of the filter command.
type filterOutput struct {
	Query     extraction.EntityExtraction `json:"query"`
	Results   []connectrpc.DocumentResult `json:"results"`
	Kept      []int                       `json:"kept"`
	LatencyMs int64                       `json:"latencyMs"`
}

func newFilterCmd(a *app) *cobra.Command {
	var (
		query    string
		docsPath string
		showAll  bool
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter candidate passages against a query",
		Long: `Filter extracts the constraints of --query and checks every passage in
--docs against them. The docs file holds one passage per line or a JSON array
of strings; use "-" to read standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadDocuments(docsPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			out, err := a.filter(cmd.Context(), query, docs)
			if err != nil {
				return err
			}

			if a.outputJSON {
				return a.ui.JSON(out)
			}

			a.ui.Section("Query")
			a.ui.KeyValue("Base entity", orDash(out.Query.BaseEntity))
			a.ui.KeyValue("Attributes", joinOrDash(out.Query.Attributes))
			if out.Query.IsComparison {
				a.ui.KeyValue("Compared", joinOrDash(out.Query.AllEntities))
			}

			a.ui.Section("Documents")
			var rows [][]string
			for _, r := range out.Results {
				if !r.Filter && !showAll {
					continue
				}
				status := "kept"
				if r.Filter {
					status = "filtered"
				}
				rows = append(rows, []string{
					strconv.Itoa(r.Index),
					status,
					orDash(r.DocumentEntity),
					orDash(r.Reason),
					preview(docs[r.Index], 32),
				})
			}
			if len(rows) > 0 {
				a.ui.Table([]string{"#", "Status", "Entity", "Reason", "Document"}, rows)
			}
			a.ui.Success("%d kept, %d filtered in %s", len(out.Kept), len(docs)-len(out.Kept),
				FormatDuration(time.Duration(out.LatencyMs)*time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "user query")
	cmd.Flags().StringVarP(&docsPath, "docs", "d", "", "file with candidate passages")
	cmd.Flags().BoolVar(&showAll, "show-kept", false, "list kept documents as well as filtered ones")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("docs")
	return cmd
}

func (a *app) filter(ctx context.Context, query string, docs []string) (filterOutput, error) {
	if a.remote != "" {
		res, err := a.remoteClient().Filter(ctx, &connectrpc.FilterRequest{
			TenantID:  a.tenant,
			Query:     query,
			Documents: docs,
		})
		if err != nil {
			return filterOutput{}, err
		}
		return filterOutput{Query: res.Query, Results: res.Results, Kept: res.Kept, LatencyMs: res.LatencyMs}, nil
	}

	rt, err := a.runtime()
	if err != nil {
		return filterOutput{}, err
	}
	defer rt.Close()

	engine, err := a.engine(rt)
	if err != nil {
		return filterOutput{}, err
	}

	start := time.Now()
	out := filterOutput{
		Query:   engine.GetApplicableRules(ctx, query),
		Results: make([]connectrpc.DocumentResult, 0, len(docs)),
		Kept:    []int{},
	}

	bar := a.ui.ProgressBar("Filtering", int64(len(docs)))
	for offset := 0; offset < len(docs); offset += filterChunk {
		end := min(offset+filterChunk, len(docs))
		res, err := engine.FilterDocuments(ctx, query, docs[offset:end])
		if err != nil {
			if bar != nil {
				bar.Abort(false)
			}
			return filterOutput{}, err
		}
		for i, d := range res.Decisions {
			out.Results = append(out.Results, connectrpc.DocumentResult{
				Index:          offset + i,
				Filter:         d.Filter,
				Reason:         d.Reason,
				DocumentEntity: d.Document.BaseEntity,
			})
		}
		for _, k := range res.Kept {
			out.Kept = append(out.Kept, offset+k)
		}
		if bar != nil {
			bar.IncrBy(end - offset)
		}
	}
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

// loadDocuments reads passages from path, or from stdin when path is "-".
func loadDocuments(path string, stdin io.Reader) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	return parseDocuments(data)
}

// parseDocuments accepts a JSON array of strings or one document per line.
// Blank lines are skipped.
func parseDocuments(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []string
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
		return docs, nil
	}

	var docs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			docs = append(docs, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	return docs, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
