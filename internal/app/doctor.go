package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gmsas95/vetscan/internal/ocr"
)

const languageListTimeout = 10 * time.Second

// Check is one line of the doctor report.
type Check struct {
	Component string
	Name      string
	OK        bool
	Detail    string
}

type availabilityChecker interface {
	Available() error
}

// Diagnose reports which configured backends can actually run on this host.
// Backends without an installation check are linked in and always usable.
func (app *App) Diagnose() []Check {
	var checks []Check

	if file := app.Config.ConfigFile(); file != "" {
		checks = append(checks, Check{Component: "config", Name: "file", OK: true, Detail: file})
	} else {
		checks = append(checks, Check{Component: "config", Name: "file", OK: true, Detail: "defaults and environment only"})
	}

	for _, dir := range []string{app.Config.Storage.DataDir, app.Config.Storage.UploadDir} {
		c := Check{Component: "storage", Name: dir, OK: true, Detail: "writable"}
		if err := checkWritable(dir); err != nil {
			c.OK = false
			c.Detail = err.Error()
		}
		checks = append(checks, c)
	}

	meds, conds := app.Rules.KeywordCount()
	checks = append(checks, Check{
		Component: "rules",
		Name:      ruleSource(app.Config.Rules.Path),
		OK:        true,
		Detail:    fmt.Sprintf("%d medication and %d condition keywords", meds, conds),
	})

	for _, r := range app.Readers {
		checks = append(checks, checkComponent("text layer", r.Name(), r))
	}
	for _, b := range app.Rasterizer.Backends() {
		checks = append(checks, checkComponent("rasterizer", b.Name(), b))
	}
	engine := app.Recognizer.Engine()
	engineCheck := checkComponent("ocr", engine.Name(), engine)
	checks = append(checks, engineCheck)
	if lister, ok := engine.(ocr.LanguageLister); ok && engineCheck.OK {
		checks = append(checks, checkLanguages(lister, app.Recognizer.Config().Languages))
	}

	return checks
}

func checkLanguages(lister ocr.LanguageLister, wanted []string) Check {
	c := Check{Component: "ocr", Name: "languages", OK: true}

	ctx, cancel := context.WithTimeout(context.Background(), languageListTimeout)
	defer cancel()
	installed, err := lister.ListLanguages(ctx)
	if err != nil {
		c.OK = false
		c.Detail = err.Error()
		return c
	}
	if missing := ocr.MissingLanguages(installed, wanted); len(missing) > 0 {
		c.OK = false
		c.Detail = "missing " + strings.Join(missing, ", ") + " (installed: " + strings.Join(installed, ", ") + ")"
		return c
	}
	c.Detail = strings.Join(wanted, ", ")
	return c
}

// Healthy reports whether every OCR check passed and at least one rasterizer
// works.
func Healthy(checks []Check) bool {
	ocrSeen, ocrOK, rasterOK := false, true, false
	for _, c := range checks {
		switch c.Component {
		case "ocr":
			ocrSeen = true
			ocrOK = ocrOK && c.OK
		case "rasterizer":
			rasterOK = rasterOK || c.OK
		case "storage":
			if !c.OK {
				return false
			}
		}
	}
	return ocrSeen && ocrOK && rasterOK
}

func checkComponent(component, name string, v any) Check {
	c := Check{Component: component, Name: name, OK: true, Detail: "built in"}
	if ac, ok := v.(availabilityChecker); ok {
		if err := ac.Available(); err != nil {
			c.OK = false
			c.Detail = err.Error()
		} else {
			c.Detail = "available"
		}
	}
	return c
}

func ruleSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
