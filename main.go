package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hrdocs/internal/archive"
	"hrdocs/internal/config"
	failures "hrdocs/internal/errors"
	"hrdocs/internal/generator"
	"hrdocs/internal/logger"
	"hrdocs/internal/pdf"
	"hrdocs/internal/results"
	"hrdocs/internal/server"
	"hrdocs/internal/types"
)

// Command line flags
var (
	kindFlag        = flag.String("kind", "", "Document kind (leave-request, mission-order, work-certificate, salary-domiciliation)")
	dataFlag        = flag.String("data", "", "JSON form data file, \"-\" for stdin")
	outFlag         = flag.String("out", "", "Output directory (default from configuration)")
	batchFlag       = flag.String("batch", "", "File listing request files, one per line")
	verifyFlag      = flag.String("verify", "", "PDF file to read back and print")
	serveFlag       = flag.Bool("serve", false, "Run the HTTP server")
	addrFlag        = flag.String("addr", "", "HTTP listen address (default from configuration)")
	configFlag      = flag.String("config", "", "Configuration file path")
	retryExportFlag = flag.String("retry-export", "", "Write the inputs of retryable failures to this file")
	listFlag        = flag.Bool("list", false, "List the supported document kinds")
	checkFlag       = flag.String("check", "", "Reference of a registered document to verify")
	revokeFlag      = flag.String("revoke", "", "Reference of a registered document to revoke")
	reasonFlag      = flag.String("reason", "", "Reason recorded with -revoke")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("hrdocs - documents RH bilingues (français / arabe) au format PDF")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  hrdocs [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -kind <KIND>          type de document")
	fmt.Println("  -data <FILE>          données du formulaire (JSON), \"-\" pour l'entrée standard")
	fmt.Println("  -out <DIR>            répertoire de sortie")
	fmt.Println("  -batch <FILE>         liste de fichiers de requête, un par ligne")
	fmt.Println("  -verify <PDF>         relire le texte d'un PDF généré")
	fmt.Println("  -serve                démarrer le serveur HTTP")
	fmt.Println("  -addr <ADDR>          adresse d'écoute du serveur")
	fmt.Println("  -config <FILE>        fichier de configuration")
	fmt.Println("  -retry-export <FILE>  exporter les entrées à relancer")
	fmt.Println("  -list                 lister les types de document")
	fmt.Println("  -check <REF>          vérifier un document du registre")
	fmt.Println("  -revoke <REF>         révoquer un document du registre (avec -reason)")
	fmt.Println()
	fmt.Println("Exemples:")
	fmt.Println("  hrdocs -kind work-certificate -data agent.json -out out/")
	fmt.Println("  hrdocs -data requete.json            # {\"kind\": ..., \"data\": {...}}")
	fmt.Println("  hrdocs -batch requetes.txt")
	fmt.Println("  hrdocs -verify out/<réf>/attestation_de_travail.pdf")
	fmt.Println("  hrdocs -serve -addr :8088")
}

// request is a request file: either a bare form or a kind with its form.
type request struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data"`
}

// decodeRequest reads a request file. A bare form takes its kind from
// defaultKind.
func decodeRequest(raw []byte, defaultKind string) (request, error) {
	var envelope request
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Kind != "" && envelope.Data != nil {
		return envelope, nil
	}

	var form map[string]any
	if err := json.Unmarshal(raw, &form); err != nil {
		return request{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if defaultKind == "" {
		return request{}, fmt.Errorf("no document kind: use -kind or a {\"kind\", \"data\"} file")
	}
	return request{Kind: defaultKind, Data: form}, nil
}

func readRequest(path, defaultKind string) (request, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return request{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return decodeRequest(raw, defaultKind)
}

// readBatchList returns the request files listed in path, relative entries
// resolved against the list's directory. Blank lines and # comments are skipped.
func readBatchList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		files = append(files, line)
	}
	return files, nil
}

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// fail reports an error on stderr and returns the matching exit code.
func fail(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "Erreur : "+format+"\n", args...)
	return exitError
}

func main() {
	os.Exit(run())
}

// run executes the command and returns its exit code; deferred cleanup has
// run by the time it returns.
func run() int {
	flag.Usage = printHelp
	flag.Parse()

	configMgr, err := config.NewConfigManager(*configFlag)
	if err != nil {
		return fail("configuration : %v", err)
	}
	if err := configMgr.Load(); err != nil {
		return fail("chargement de la configuration : %v", err)
	}
	cfg := configMgr.GetConfig()

	logPath := cfg.LogFilePath
	if logPath == "" {
		logPath = "hrdocs.log"
	}
	if err := logger.Init(&logger.Config{
		LogFilePath:   logPath,
		MaxFileSize:   10 * 1024 * 1024,
		MaxBackups:    5,
		Level:         logger.ParseLevel(cfg.LogLevel),
		EnableConsole: *serveFlag,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Avertissement : journalisation indisponible : %v\n", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verifyFlag != "" {
		return runVerify(*verifyFlag)
	}

	journal, err := failures.NewErrorManager(cfg.JournalDirectory)
	if err != nil {
		logger.Warn("failure journal unavailable", logger.Err(err))
		journal = nil
	}

	var register *results.ResultManager
	if cfg.RegisterDirectory != "" {
		if register, err = results.NewResultManager(cfg.RegisterDirectory); err != nil {
			return fail("registre : %v", err)
		}
	}

	if *checkFlag != "" || *revokeFlag != "" {
		if register == nil {
			return fail("registre non configuré (register_directory)")
		}
		return runRegister(register)
	}

	if *retryExportFlag != "" {
		if journal == nil {
			return fail("journal des échecs indisponible")
		}
		if err := journal.ExportRetryInputs(*retryExportFlag); err != nil {
			return fail("%v", err)
		}
		fmt.Printf("%d entrée(s) à relancer écrites dans %s\n", len(journal.ListRetryable()), *retryExportFlag)
		return exitOK
	}

	sink, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return fail("archivage : %v", err)
	}
	if sink != nil {
		defer sink.Close()
	}

	var opts []generator.Option
	if sink != nil {
		opts = append(opts, generator.WithArchive(sink))
	}
	if journal != nil {
		opts = append(opts, generator.WithJournal(journal))
	}
	if register != nil {
		opts = append(opts, generator.WithRegister(register))
	}
	gen, err := generator.New(cfg, opts...)
	if err != nil {
		return fail("%v", err)
	}

	switch {
	case *listFlag:
		for _, kind := range gen.Kinds() {
			fmt.Println(kind)
		}
		return exitOK

	case *serveFlag:
		addr := *addrFlag
		if addr == "" {
			addr = cfg.ListenAddress
		}
		if err := server.New(gen, journal, server.WithRegister(register)).ListenAndServe(ctx, addr); err != nil {
			return fail("serveur : %v", err)
		}
		return exitOK

	case *batchFlag != "":
		return runBatch(ctx, gen, outputDir(cfg), *batchFlag)

	case *dataFlag != "":
		return runSingle(ctx, gen, journal, outputDir(cfg), *dataFlag)
	}
	printHelp()
	return exitUsage
}

func outputDir(cfg *types.Config) string {
	if *outFlag != "" {
		return *outFlag
	}
	return cfg.OutputDirectory
}

// writeArtifact saves a document under dir/<reference>/<filename>, the same
// layout as the archive, so two employees' documents never share a path.
func writeArtifact(dir string, res *generator.Result) (string, error) {
	key, err := archive.Key(res.Reference, res.SuggestedFilename)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, res.Bytes, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func printResult(path string, res *generator.Result) {
	fmt.Printf("%s (%d page(s), %d octets, réf. %s)\n", path, res.PageCount, len(res.Bytes), res.Reference)
	if len(res.Untranslated) > 0 {
		fmt.Printf("  non traduit : %s\n", strings.Join(res.Untranslated, ", "))
	}
	if res.ArchiveError != nil {
		fmt.Printf("  archivage échoué : %v\n", res.ArchiveError)
	} else if res.ArchivedAt != "" {
		fmt.Printf("  archivé : %s\n", res.ArchivedAt)
	}
	if res.RegisterError != nil {
		fmt.Printf("  registre non mis à jour : %v\n", res.RegisterError)
	}
}

func runSingle(ctx context.Context, gen *generator.Generator, journal *failures.ErrorManager, dir, dataPath string) int {
	req, err := readRequest(dataPath, *kindFlag)
	if err != nil {
		return fail("%v", err)
	}

	res, err := gen.Generate(ctx, req.Kind, req.Data)
	if err != nil {
		if journal != nil {
			_ = journal.RecordError(req.Kind, dataPath, err)
		}
		var de *types.DocError
		if errors.As(err, &de) && de.Field != "" {
			return fail("%s (champ %s)", err, de.Field)
		}
		return fail("%v", err)
	}
	if journal != nil {
		_ = journal.RemoveError(failures.RecordID(req.Kind, dataPath))
	}

	path, err := writeArtifact(dir, res)
	if err != nil {
		return fail("écriture : %v", err)
	}
	printResult(path, res)
	return exitOK
}

func runBatch(ctx context.Context, gen *generator.Generator, dir, listPath string) int {
	files, err := readBatchList(listPath)
	if err != nil {
		return fail("lecture de la liste : %v", err)
	}

	items := make([]generator.BatchItem, 0, len(files))
	for _, f := range files {
		req, err := readRequest(f, *kindFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s : %v\n", f, err)
			continue
		}
		items = append(items, generator.BatchItem{Input: f, Kind: req.Kind, Data: req.Data})
	}

	out, err := gen.GenerateBatch(ctx, items, 0)
	if err != nil {
		return fail("lot interrompu : %v", err)
	}

	failed := 0
	for _, r := range out {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s : %v\n", r.Input, r.Err)
			continue
		}
		path, err := writeArtifact(dir, r.Result)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s : écriture : %v\n", r.Input, err)
			continue
		}
		printResult(path, r.Result)
	}
	fmt.Printf("%d document(s), %d échec(s)\n", len(out), failed)
	if failed > 0 {
		return exitError
	}
	return exitOK
}

func runVerify(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return fail("%v", err)
	}
	pages, err := pdf.PageCount(data)
	if err != nil {
		return fail("%v", err)
	}
	rows, err := pdf.ExtractRows(data)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("%s : %d page(s), %d ligne(s) de texte\n", path, pages, len(rows))
	for _, row := range rows {
		fmt.Printf("  p%d y=%6.1f %s\n", row.Page, row.Y, row.Text)
	}
	return exitOK
}

func runRegister(register *results.ResultManager) int {
	if *revokeFlag != "" {
		if err := register.Revoke(*revokeFlag, *reasonFlag, time.Now()); err != nil {
			return fail("%v", err)
		}
		fmt.Printf("%s révoqué\n", *revokeFlag)
		return exitOK
	}

	info, err := register.Verify(*checkFlag)
	if info == nil {
		return fail("%v", err)
	}
	fmt.Printf("%s : %s, %s, délivré le %s (%s)\n", info.Reference, info.Kind, info.Filename,
		info.IssuedAt.Format("02/01/2006"), info.Status)
	if err != nil {
		return fail("document invalide : %v", err)
	}
	fmt.Println("document authentique")
	return exitOK
}
