// Command ksiverify is the CLI/service driver for the verification engine:
// a one-shot `verify` mode for scripting and CI, and a `serve` mode that
// exposes the same policy evaluation over HTTP plus a Prometheus /metrics
// endpoint, following the teacher main.go's flag-parsing, signal-handling
// and net/http server-loop idioms.
package main

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/ksiverify/pkg/cache"
	"github.com/certen/ksiverify/pkg/config"
	"github.com/certen/ksiverify/pkg/database"
	"github.com/certen/ksiverify/pkg/extender"
	"github.com/certen/ksiverify/pkg/hashing"
	"github.com/certen/ksiverify/pkg/metrics"
	"github.com/certen/ksiverify/pkg/pki"
	"github.com/certen/ksiverify/pkg/pki/x509ref"
	"github.com/certen/ksiverify/pkg/policy"
	"github.com/certen/ksiverify/pkg/pubfile"
	"github.com/certen/ksiverify/pkg/signature"
	"github.com/certen/ksiverify/pkg/verification"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		mode          = flag.String("mode", "verify", "verify (one-shot) or serve (HTTP service)")
		sigPath       = flag.String("sig", "", "path to the signature file to verify (verify mode)")
		docHashHex    = flag.String("doc-hash", "", "hex-encoded imprint of the document to bind the signature to")
		policyName    = flag.String("policy", "general", "internal|key-based|publications-file|user-publication|calendar-based|general")
		pubFilePath   = flag.String("pub-file", "", "path to a publications file")
		trustCfgPath  = flag.String("trust-config", "", "path to a trust configuration YAML file")
		allowExtend   = flag.Bool("allow-extend", false, "permit extending the calendar chain via the configured extender")
		listenAddr    = flag.String("listen", "", "HTTP listen address for serve mode (overrides METRICS_ADDR)")
		showHelp      = flag.Bool("help", false, "show this help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	var trustCfg *config.TrustConfig
	if *trustCfgPath != "" {
		trustCfg, err = config.LoadTrustConfig(*trustCfgPath)
		if err != nil {
			log.Fatalf("loading trust configuration: %v", err)
		}
		if err := trustCfg.Validate(); err != nil {
			log.Fatalf("invalid trust configuration: %v", err)
		}
	}

	reg := hashing.DefaultRegistry()
	metricsReg := metrics.New()

	switch *mode {
	case "verify":
		runVerify(reg, metricsReg, cfg, trustCfg, *sigPath, *docHashHex, *policyName, *pubFilePath, *allowExtend)
	case "serve":
		runServe(reg, metricsReg, cfg, trustCfg, *listenAddr)
	default:
		log.Fatalf("unknown -mode %q: want verify or serve", *mode)
	}
}

func runVerify(reg *hashing.Registry, metricsReg *metrics.Registry, cfg *config.Config, trustCfg *config.TrustConfig, sigPath, docHashHex, policyName, pubFilePath string, allowExtend bool) {
	if sigPath == "" {
		log.Fatal("-sig is required in verify mode")
	}

	raw, err := os.ReadFile(sigPath)
	if err != nil {
		log.Fatalf("reading signature file: %v", err)
	}
	sig, err := signature.Parse(reg, raw)
	if err != nil {
		log.Fatalf("parsing signature: %v", err)
	}

	vc := &verification.VerificationContext{Registry: reg, Signature: sig, AllowExtending: allowExtend}

	if docHashHex != "" {
		digest, err := hex.DecodeString(docHashHex)
		if err != nil {
			log.Fatalf("decoding -doc-hash: %v", err)
		}
		vc.DocumentHash = hashing.Imprint(digest)
	}

	if pubFilePath != "" {
		pfRaw, err := os.ReadFile(pubFilePath)
		if err != nil {
			log.Fatalf("reading publications file: %v", err)
		}
		pf, err := pubfile.Parse(reg, pfRaw)
		if err != nil {
			log.Fatalf("parsing publications file: %v", err)
		}
		vc.PublicationsFile = pf
	}

	store, err := openCacheStore(cfg)
	if err != nil {
		log.Fatalf("opening extender cache: %v", err)
	}
	defer store.Close()

	archive, err := openArchive(cfg)
	if err != nil {
		log.Fatalf("opening archive database: %v", err)
	}
	if archive != nil {
		defer archive.Close()
	}

	if cfg.ExtenderURI != "" {
		ext, err := buildExtender(cfg, reg, store, archive)
		if err != nil {
			log.Fatalf("building extender: %v", err)
		}
		vc.Extender = ext
	}

	if pubFilePath == "" && cfg.PublicationsFileURI != "" {
		pf, err := loadPublicationsFileURI(cfg.PublicationsFileURI, reg)
		if err != nil {
			log.Fatalf("loading publications file from %s: %v", cfg.PublicationsFileURI, err)
		}
		vc.PublicationsFile = pf
	}

	if trustCfg != nil {
		p, err := loadPKI(trustCfg)
		if err != nil {
			log.Fatalf("loading PKI trust set: %v", err)
		}
		vc.PKI = p
	}

	p, err := selectPolicy(policyName, vc)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	res := p.Evaluate(context.Background(), vc)
	observeResult(metricsReg, res, time.Since(start))

	out, _ := json.MarshalIndent(toJSONResult(res), "", "  ")
	fmt.Println(string(out))

	if res.Err() != nil {
		os.Exit(1)
	}
}

func runServe(reg *hashing.Registry, metricsReg *metrics.Registry, cfg *config.Config, trustCfg *config.TrustConfig, listenAddr string) {
	addr := listenAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr == "" {
		log.Fatal("serve mode requires -listen or METRICS_ADDR")
	}

	store, err := openCacheStore(cfg)
	if err != nil {
		log.Fatalf("opening extender cache: %v", err)
	}
	defer store.Close()

	archive, err := openArchive(cfg)
	if err != nil {
		log.Fatalf("opening archive database: %v", err)
	}
	if archive != nil {
		defer archive.Close()
	}

	var pkiStore pki.PKI
	if trustCfg != nil {
		pkiStore, err = loadPKI(trustCfg)
		if err != nil {
			log.Fatalf("loading PKI trust set: %v", err)
		}
	}

	var ext extender.Extender
	if cfg.ExtenderURI != "" {
		ext, err = buildExtender(cfg, reg, store, archive)
		if err != nil {
			log.Fatalf("building extender: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsReg.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		serveVerify(w, r, reg, metricsReg, ext, pkiStore, cfg)
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("serving on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func serveVerify(w http.ResponseWriter, r *http.Request, reg *hashing.Registry, metricsReg *metrics.Registry, ext extender.Extender, pkiStore pki.PKI, cfg *config.Config) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sig, err := signature.Parse(reg, raw)
	if err != nil {
		http.Error(w, "parsing signature: "+err.Error(), http.StatusBadRequest)
		return
	}

	vc := &verification.VerificationContext{
		Registry:       reg,
		Signature:      sig,
		Extender:       ext,
		PKI:            pkiStore,
		AllowExtending: r.URL.Query().Get("allow-extend") == "true",
	}
	if h := r.URL.Query().Get("doc-hash"); h != "" {
		digest, err := hex.DecodeString(h)
		if err != nil {
			http.Error(w, "invalid doc-hash: "+err.Error(), http.StatusBadRequest)
			return
		}
		vc.DocumentHash = hashing.Imprint(digest)
	}

	p, err := selectPolicy(r.URL.Query().Get("policy"), vc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	res := p.Evaluate(r.Context(), vc)
	observeResult(metricsReg, res, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if res.Err() != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(toJSONResult(res))
}

func selectPolicy(name string, vc *verification.VerificationContext) (*policy.Policy, error) {
	switch name {
	case "", "general":
		return policy.General(vc), nil
	case "internal":
		return policy.Internal(), nil
	case "key-based":
		return policy.KeyBased(), nil
	case "publications-file":
		return policy.PublicationsFile(), nil
	case "user-publication":
		return policy.UserProvidedPublication(), nil
	case "calendar-based":
		return policy.CalendarBased(), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

func openCacheStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "bbolt":
		return cache.OpenBoltStore(cfg.CacheDir + "/extension-cache.db")
	case "cometbft":
		db, err := dbm.NewGoLevelDB("extension-cache", cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		return cache.NewCometStore(db), nil
	case "memory", "":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// buildExtender resolves cfg.ExtenderURI via extender.NewFromURI (spec §D.3
// URI dispatch), then wraps it with the on-disk extension cache and, when
// an archive database is configured, an audit trail of every Extend call.
func buildExtender(cfg *config.Config, reg *hashing.Registry, store cache.Store, archive *database.Client) (extender.Extender, error) {
	base, err := extender.NewFromURI(cfg.ExtenderURI, reg, extender.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	ext := extender.NewCachingExtender(base, store, reg, log.New(log.Writer(), "[Extender] ", log.LstdFlags))
	if archive != nil {
		return extender.NewAuditingExtender(ext, archive, cfg.ExtenderURI, log.New(log.Writer(), "[Extender] ", log.LstdFlags)), nil
	}
	return ext, nil
}

// openArchive opens the optional archive/audit database. A nil Config
// DatabaseURL means no archive is configured at all - the cache and
// extender still work entirely in-memory/on-disk without one.
func openArchive(cfg *config.Config) (*database.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	client, err := database.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.MigrateUp(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("running archive migrations: %w", err)
	}
	return client, nil
}

// loadPublicationsFileURI fetches a publications file from uri (spec §D.3
// URI dispatch): "file://" reads a local path, "http://"/"https://" issue a
// GET request.
func loadPublicationsFileURI(uri string, reg *hashing.Registry) (*pubfile.PublicationsFile, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing publications file URI: %w", err)
	}

	var raw []byte
	switch u.Scheme {
	case "file":
		raw, err = os.ReadFile(u.Path)
	case "http", "https":
		var resp *http.Response
		resp, err = http.Get(uri)
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("fetching publications file: HTTP %d", resp.StatusCode)
			}
			raw, err = io.ReadAll(resp.Body)
		}
	default:
		return nil, fmt.Errorf("unsupported publications file URI scheme: %s", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return pubfile.Parse(reg, raw)
}

// loadPKI builds an x509ref.Store from a trust configuration's certificate
// list, decoding each PEM file into DER.
func loadPKI(trustCfg *config.TrustConfig) (pki.PKI, error) {
	trusted := make(map[string][]byte, len(trustCfg.Certificates))
	for _, c := range trustCfg.Certificates {
		pemBytes, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, fmt.Errorf("reading certificate %s: %w", c.Path, err)
		}
		block, _ := pem.Decode(pemBytes)
		if block == nil {
			return nil, fmt.Errorf("no PEM block found in %s", c.Path)
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("parsing certificate %s: %w", c.Path, err)
		}
		trusted[c.ID] = block.Bytes
	}
	return x509ref.New(trusted), nil
}

// jsonResult is the stable wire shape for a policy.Result: policy.Result
// itself carries time.Time/time.Duration fields that marshal verbosely, so
// the CLI's output is normalized to plain strings and seconds.
type jsonResult struct {
	Policy     string                      `json:"policy"`
	OK         bool                        `json:"ok"`
	FellBackTo string                      `json:"fell_back_to,omitempty"`
	Steps      []verification.RuleResult   `json:"steps"`
	FailedStep *verification.RuleResult    `json:"failed_step,omitempty"`
	DurationMS int64                       `json:"duration_ms"`
	Error      string                      `json:"error,omitempty"`
}

func toJSONResult(res *policy.Result) jsonResult {
	jr := jsonResult{
		Policy:     res.PolicyName,
		OK:         res.OK,
		FellBackTo: res.FellBackTo,
		Steps:      res.Steps,
		FailedStep: res.FailedStep,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err := res.Err(); err != nil {
		jr.Error = err.Error()
	}
	return jr
}

func observeResult(metricsReg *metrics.Registry, res *policy.Result, elapsed time.Duration) {
	outcomes := make([]metrics.RuleOutcome, 0, len(res.Steps))
	for _, s := range res.Steps {
		outcomes = append(outcomes, metrics.RuleOutcome{Rule: s.StepID, Status: s.Status.String()})
	}
	metricsReg.ObservePolicyResult(res.PolicyName, res.OK, elapsed.Seconds(), outcomes)
}
