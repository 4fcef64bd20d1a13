// Package cli implements the kvmirror command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"code.byted.org/khicago/kvmirror"
)

const usage = `usage: kvmirror <command> [args]

commands:
  get KEY...                 print values
  set [-type T] KEY VALUE    store a value; T is string, number, date, bool, null or json
  rm KEY...                  remove keys
  keys                       list keys in insertion order
  search [-regexp] PATTERN   print pairs whose key matches a glob (or regexp)
  clear                      remove every key of the namespace
  dump                       print every pair as tagged JSON`

// ErrUsage reports malformed arguments.
var ErrUsage = errors.New(usage)

// Run executes one command against store and writes results to out.
func Run(ctx context.Context, store *kvmirror.Store, args []string, out io.Writer) error {
	if store == nil {
		return errors.New("store is required")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get":
		if len(rest) == 0 {
			return ErrUsage
		}
		for _, p := range store.MultiGet(rest...) {
			if p.Value.IsAbsent() {
				return fmt.Errorf("%s: %w", p.Key, kvmirror.ErrNotFound)
			}
			if _, err := fmt.Fprintln(out, p.Value.String()); err != nil {
				return err
			}
		}
		return nil
	case "set":
		return runSet(ctx, store, rest)
	case "rm":
		if len(rest) == 0 {
			return ErrUsage
		}
		return store.MultiRemove(ctx, rest...)
	case "keys":
		return writeLines(out, store.GetAllKeys())
	case "search":
		return runSearch(store, rest, out)
	case "clear":
		return store.Clear(ctx)
	case "dump":
		return runDump(store, out)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, ErrUsage)
	}
}

func runSet(ctx context.Context, store *kvmirror.Store, args []string) error {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	typ := fs.String("type", "string", "value type")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\n%w", err, ErrUsage)
	}
	if fs.NArg() != 2 {
		return ErrUsage
	}
	v, err := ParseValue(*typ, fs.Arg(1))
	if err != nil {
		return err
	}
	return store.SetItem(ctx, fs.Arg(0), v)
}

func runSearch(store *kvmirror.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	useRegexp := fs.Bool("regexp", false, "treat PATTERN as a regular expression")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\n%w", err, ErrUsage)
	}
	if fs.NArg() != 1 {
		return ErrUsage
	}

	var (
		m   kvmirror.Matcher
		err error
	)
	if *useRegexp {
		m, err = regexp.Compile(fs.Arg(0))
		if err != nil {
			err = fmt.Errorf("%w: %v", kvmirror.ErrInvalidPattern, err)
		}
	} else {
		m, err = kvmirror.Glob(fs.Arg(0))
	}
	if err != nil {
		return err
	}

	for _, p := range store.Search(m) {
		if _, err := fmt.Fprintf(out, "%s\t%s\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func runDump(store *kvmirror.Store, out io.Writer) error {
	for _, p := range store.Search(nil) {
		raw, err := kvmirror.Marshal(p.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Key, err)
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", p.Key, raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseValue converts command line text to a Value of the named type.
func ParseValue(typ, text string) (kvmirror.Value, error) {
	switch strings.ToLower(typ) {
	case "string", "":
		return kvmirror.String(text), nil
	case "number":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return kvmirror.Value{}, fmt.Errorf("%w: number %q", kvmirror.ErrInvalidValue, text)
		}
		return kvmirror.Number(f), nil
	case "bool":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return kvmirror.Value{}, fmt.Errorf("%w: bool %q", kvmirror.ErrInvalidValue, text)
		}
		return kvmirror.Bool(b), nil
	case "null":
		return kvmirror.Null(), nil
	case "date":
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if t, err := time.Parse(layout, text); err == nil {
				return kvmirror.Date(t), nil
			}
		}
		return kvmirror.Value{}, fmt.Errorf("%w: date %q", kvmirror.ErrInvalidValue, text)
	case "json":
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return kvmirror.Value{}, fmt.Errorf("%w: %v", kvmirror.ErrInvalidValue, err)
		}
		return kvmirror.ValueOf(v)
	default:
		return kvmirror.Value{}, fmt.Errorf("unknown type %q", typ)
	}
}

func writeLines(out io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}
