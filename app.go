package main

import (
	"fmt"
	"path/filepath"

	"earshot/analysis"
	"earshot/archive"
	"earshot/audio"
	"earshot/classifier"
	"earshot/config"
	"earshot/credential"
	"earshot/export"
	"earshot/log"
	"earshot/recognizer"
	"earshot/session"
)

type globalFlags struct {
	configPath string
	logPath    string
	device     string
}

func (g *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if g.device != "" {
		cfg.Device = g.device
	}
	return cfg, nil
}

// env holds the long-lived stores every command shares.
type env struct {
	cfg   config.Config
	creds credential.Store
	arch  *archive.Store
	files *export.Local
}

func openEnv(g *globalFlags) (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	creds, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, creds: creds, files: export.NewLocal(cfg.OutputDir)}

	// The archive is optional; sessions still work without history.
	arch, err := archive.Open(archive.DefaultPath(cfg.DataDir))
	if err != nil {
		log.Warnf("archive unavailable: %v", err)
	} else {
		e.arch = arch
	}
	return e, nil
}

func openCredentials(cfg config.Config) (credential.Store, error) {
	store, err := credential.OpenBadger(credential.BadgerOptions{Dir: filepath.Join(cfg.DataDir, "credentials")})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return store, nil
}

func (e *env) Close() {
	if e.arch != nil {
		e.arch.Close()
	}
	if e.creds != nil {
		e.creds.Close()
	}
}

// sessionOptions maps the config onto the controller. Recognizers and
// Audio are left to the caller.
func (e *env) sessionOptions() session.Options {
	cfg := e.cfg
	opts := session.Options{
		Credentials: e.creds,
		Files:       e.files,
		Locale:      cfg.Locale,
		Formats:     cfg.Recording.Formats,
		Gain:        cfg.Recording.Gain,
		Classifier: classifier.Options{
			Model:   cfg.Classifier.Model,
			Timeout: cfg.ClassifierTimeout(),
			Window:  cfg.Classifier.ContextWindow,
		},
		Analysis: analysis.Options{
			Models:        cfg.Analysis.Models,
			Timeout:       cfg.AnalysisTimeout(),
			MinUtterances: cfg.Analysis.MinUtterances,
		},
		HistoryCapacity: cfg.History.Capacity,
		DedupWindow:     cfg.DedupWindow(),
		Restart: recognizer.RestartPolicy{
			MaxAttempts: cfg.Restart.MaxAttempts,
			Window:      cfg.RestartWindow(),
		},
	}
	if e.arch != nil {
		opts.Archive = e.arch
	}
	return opts
}

// recognizerFactory returns nil when no recognizer is configured, which
// the controller reports as an unsupported environment.
func recognizerFactory(cfg config.Config, actx audio.Context, dev *audio.DeviceInfo) recognizer.Factory {
	if cfg.Recognizer.Provider != "deepgram" || cfg.Recognizer.APIKey == "" || actx == nil {
		return nil
	}
	return recognizer.DeepgramFactory(recognizer.DeepgramConfig{
		APIKey:   cfg.Recognizer.APIKey,
		Endpoint: cfg.Recognizer.Endpoint,
		Model:    cfg.Recognizer.Model,
		Locale:   cfg.Locale,
		Audio:    actx,
		Device:   dev,
	})
}
