// Command predict classifies questionnaires with a trained model bundle,
// either one JSON record or a whole CSV file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mimir-aip/obesity-tc/internal/cli"
	"github.com/mimir-aip/obesity-tc/pkg/dataset"
	"github.com/mimir-aip/obesity-tc/pkg/inference"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("predict", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "YAML config file (default $OBESITY_CONFIG)")
	modelPath := flags.String("model", "", "model bundle path")
	record := flags.String("record", "", "questionnaire as JSON; \"-\" reads stdin")
	input := flags.String("input", "", "CSV of questionnaires to classify")
	output := flags.String("output", "", "CSV output for -input (default stdout)")
	if err := flags.Parse(args); err != nil {
		return cli.ExitFailure
	}
	if (*record == "") == (*input == "") {
		fmt.Fprintln(stderr, "Exactly one of -record or -input is required")
		flags.Usage()
		return cli.ExitFailure
	}

	cfg, log, err := cli.Bootstrap(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return cli.ExitFailure
	}
	defer logger.Sync()

	if *modelPath == "" {
		*modelPath = cfg.Training.ModelPath
	}
	svc, err := inference.Load(*modelPath, cfg.Training.TargetColumn)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load model: %v\n", err)
		return cli.ExitFailure
	}
	log.Debugw("Loaded model", "path", *modelPath, "run_id", svc.Bundle().RunID)

	if *record != "" {
		err = predictRecord(svc, *record, stdin, stdout)
	} else {
		err = predictFile(svc, *input, *output, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Prediction failed: %v\n", err)
		return cli.ExitFailure
	}
	return cli.ExitOK
}

func predictRecord(svc *inference.Service, record string, stdin io.Reader, stdout io.Writer) error {
	var r io.Reader = strings.NewReader(record)
	if record == "-" {
		r = stdin
	}
	var q models.Questionnaire
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return fmt.Errorf("%w: invalid record: %v", models.ErrSchemaMismatch, err)
	}

	pred, err := svc.Predict(q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}

func predictFile(svc *inference.Service, input, output string, stdout io.Writer) error {
	raw, err := dataset.ReadCSVFile(input)
	if err != nil {
		return err
	}
	preds, err := svc.PredictFrame(raw)
	if err != nil {
		return err
	}

	labels := make([]string, len(preds))
	confidence := make([]float64, len(preds))
	for i, p := range preds {
		labels[i] = p.Label
		confidence[i] = p.Confidence
	}
	out := raw.Clone()
	if err := out.SetText("prediction", labels); err != nil {
		return err
	}
	if err := out.SetNumeric("confidence", confidence); err != nil {
		return err
	}

	if output == "" {
		return dataset.WriteCSV(stdout, out)
	}
	return dataset.SaveCSVFile(output, out)
}
