package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seqforge/seqnet/internal/datasets"
	utilsmath "github.com/seqforge/seqnet/internal/utils/math"
)

type AnalyzeOptions struct {
	InputFile    string
	MaxLag       int
	OutputFormat string
}

func NewAnalyzeCmd() *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an exported dataset file",
		Long: `Read a dataset exported by the generate command and report descriptive
statistics per input dimension, the autocorrelation and dominant period of
the signal, and the label distribution for labeled sets.`,
		Example: `  # Summarize a CSV export
  seqnet analyze --input sines.csv

  # Machine-readable report with a longer autocorrelation window
  seqnet analyze --input series.json --max-lag 25 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Exported dataset file (.csv or .json)")
	cmd.Flags().IntVar(&opts.MaxLag, "max-lag", 10, "Largest autocorrelation lag to report")
	cmd.Flags().StringVarP(&opts.OutputFormat, "format", "f", "text", "Report format (text, json)")
	cmd.MarkFlagRequired("input")

	return cmd
}

type dimensionReport struct {
	Name  string                 `json:"name"`
	Stats utilsmath.SummaryStats `json:"stats"`
}

type analysisReport struct {
	File            string            `json:"file"`
	Type            string            `json:"type,omitempty"`
	Name            string            `json:"name,omitempty"`
	Sequences       int               `json:"sequences"`
	Steps           int               `json:"steps"`
	Dimensions      []dimensionReport `json:"dimensions"`
	AutoCorrelation []float64         `json:"autocorrelation,omitempty"`
	DominantFreq    float64           `json:"dominant_frequency,omitempty"`
	DominantPeriod  float64           `json:"dominant_period,omitempty"`
	Labels          map[string]int    `json:"labels,omitempty"`
}

func runAnalyze(cmd *cobra.Command, opts *AnalyzeOptions) error {
	doc, err := loadExportDocument(opts.InputFile)
	if err != nil {
		return err
	}

	report, err := buildReport(opts.InputFile, doc, opts.MaxLag)
	if err != nil {
		return err
	}

	switch opts.OutputFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
		printReport(cmd, report)
		return nil
	default:
		return fmt.Errorf("unsupported report format %q (use text or json)", opts.OutputFormat)
	}
}

// loadExportDocument reads a dataset export back in, picking the parser from
// the file extension.
func loadExportDocument(path string) (*datasets.ExportDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	switch {
	case strings.HasSuffix(path, ".json"):
		var doc datasets.ExportDocument
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return &doc, nil
	case strings.HasSuffix(path, ".csv"):
		doc, err := parseCSVExport(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported input format for %q (use .csv or .json)", path)
	}
}

// parseCSVExport reads the CSV layout written by ExportCSV: one row per
// sequence and step, x columns for inputs and an optional trailing label.
func parseCSVExport(r io.Reader) (*datasets.ExportDocument, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < 3 || header[0] != "sequence" || header[1] != "step" {
		return nil, fmt.Errorf("unrecognized CSV header, expected sequence,step,x0,...")
	}

	inputDims := 0
	labelCol := -1
	for idx := 2; idx < len(header); idx++ {
		switch {
		case strings.HasPrefix(header[idx], "x"):
			inputDims++
		case header[idx] == "label":
			labelCol = idx
		}
	}
	if inputDims == 0 {
		return nil, fmt.Errorf("CSV header has no input columns")
	}

	doc := &datasets.ExportDocument{}
	var current *datasets.ExportedSequence
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		seqIdx, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("invalid sequence index %q: %w", record[0], err)
		}
		if current == nil || current.Index != seqIdx {
			doc.Sequences = append(doc.Sequences, datasets.ExportedSequence{Index: seqIdx})
			current = &doc.Sequences[len(doc.Sequences)-1]
		}

		row := make([]float64, inputDims)
		for i := range row {
			v, err := strconv.ParseFloat(record[2+i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q in sequence %d: %w", record[2+i], seqIdx, err)
			}
			row[i] = v
		}
		current.Values = append(current.Values, row)

		if labelCol >= 0 && current.Label == nil {
			if label, err := strconv.Atoi(record[labelCol]); err == nil {
				current.Label = &label
			}
		}
	}

	doc.Info.Columns = len(doc.Sequences)
	doc.Info.Rows = inputDims
	if len(doc.Sequences) > 0 {
		doc.Info.Steps = len(doc.Sequences[0].Values)
	}
	return doc, nil
}

func buildReport(path string, doc *datasets.ExportDocument, maxLag int) (*analysisReport, error) {
	if len(doc.Sequences) == 0 {
		return nil, fmt.Errorf("%s contains no sequences", path)
	}

	steps := doc.Info.Steps
	if steps == 0 {
		steps = len(doc.Sequences[0].Values)
	}
	dims := doc.Info.Rows
	if dims == 0 && steps > 0 {
		dims = len(doc.Sequences[0].Values[0])
	}
	if dims == 0 {
		return nil, fmt.Errorf("%s contains no input values", path)
	}

	report := &analysisReport{
		File:      path,
		Type:      doc.Info.Type,
		Name:      doc.Info.Name,
		Sequences: len(doc.Sequences),
		Steps:     steps,
	}

	// Pool every value of a dimension across sequences and steps.
	pooled := make([][]float64, dims)
	for _, seq := range doc.Sequences {
		for _, row := range seq.Values {
			for i, v := range row {
				if i < dims {
					pooled[i] = append(pooled[i], v)
				}
			}
		}
	}
	for i, values := range pooled {
		report.Dimensions = append(report.Dimensions, dimensionReport{
			Name:  "x" + strconv.Itoa(i),
			Stats: utilsmath.Describe(values),
		})
	}

	// Autocorrelation and spectrum come from the first dimension of the first
	// sequence, so lags never straddle a sequence boundary.
	series := make([]float64, 0, len(doc.Sequences[0].Values))
	for _, row := range doc.Sequences[0].Values {
		series = append(series, row[0])
	}
	if maxLag >= len(series) {
		maxLag = len(series) - 1
	}
	for lag := 1; lag <= maxLag; lag++ {
		report.AutoCorrelation = append(report.AutoCorrelation, utilsmath.AutoCorrelation(series, lag))
	}
	if freq := utilsmath.DominantFrequency(series, 1); freq > 0 {
		report.DominantFreq = freq
		report.DominantPeriod = 1 / freq
	}

	labels := make(map[string]int)
	for _, seq := range doc.Sequences {
		if seq.Label != nil {
			labels[strconv.Itoa(*seq.Label)]++
		}
	}
	if len(labels) > 0 {
		report.Labels = labels
	}
	return report, nil
}

func printReport(cmd *cobra.Command, report *analysisReport) {
	name := report.Type
	if name == "" {
		name = "dataset"
	}
	if report.Name != "" {
		name = fmt.Sprintf("%s (%s)", name, report.Name)
	}
	cmd.Printf("Analysis of %s from %s\n", name, report.File)
	cmd.Printf("Sequences: %d   Steps: %d   Input dimensions: %d\n",
		report.Sequences, report.Steps, len(report.Dimensions))

	cmd.Printf("\nInput statistics:\n")
	cmd.Printf("  %-6s %8s %10s %10s %10s %10s %10s\n",
		"dim", "count", "mean", "std_dev", "min", "median", "max")
	for _, dim := range report.Dimensions {
		cmd.Printf("  %-6s %8d %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			dim.Name, dim.Stats.Count, dim.Stats.Mean, dim.Stats.StdDev,
			dim.Stats.Min, dim.Stats.Median, dim.Stats.Max)
	}

	if len(report.AutoCorrelation) > 0 {
		cmd.Printf("\nAutocorrelation of x0 (first sequence):\n")
		for lag, value := range report.AutoCorrelation {
			cmd.Printf("  lag %2d: %7.4f\n", lag+1, value)
		}
	}
	if report.DominantPeriod > 0 {
		cmd.Printf("\nDominant period: %.1f steps (%.4f cycles/step)\n",
			report.DominantPeriod, report.DominantFreq)
	}

	if len(report.Labels) > 0 {
		classes := make([]string, 0, len(report.Labels))
		for class := range report.Labels {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		cmd.Printf("\nLabel distribution:\n")
		for _, class := range classes {
			cmd.Printf("  class %s: %d sequences\n", class, report.Labels[class])
		}
	}
}
