// Package cliconfig provides a configuration file loader.
//
// It is intended for internal use by timeserver only.
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// A slice of paths to files that should be used as config files
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Load loads the config from the CLI and config files that are present and
// returns any warnings or errors. This daemon's config structs only ever
// need three field kinds (string, bool, int) bound from a "cli" tag and an
// optional "required" validation, so that is all this binds — no arg-index
// fields, renamed/deprecated fields, or path normalization tags, none of
// which any config struct here uses.
func (l *Loader) Load() (warnings []string, err error) {
	// Try and find a config file, either passed in the command line using
	// --config, or in one of the default configuration file paths.
	if l.CLI.String("config") != "" {
		file := File{Path: l.CLI.String("config")}

		// Because this file was passed in manually, we should throw an error
		// if it doesn't exist.
		if file.Exists() {
			l.File = &file
		} else {
			absolutePath, _ := file.AbsolutePath()
			return warnings, fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
	} else if len(l.DefaultConfigFilePaths) > 0 {
		for _, path := range l.DefaultConfigFilePaths {
			file := File{Path: path}

			// If the config file exists, save it to the loader and
			// don't bother checking the others.
			if file.Exists() {
				l.File = &file
				break
			}
		}
	}

	// If a file was found, then we should load it
	if l.File != nil {
		if err := l.File.Load(); err != nil {
			return warnings, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Now it's onto actually setting the fields. We start by getting all
	// the fields from the configuration interface
	fields, _ := reflections.FieldsDeep(l.Config)

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName == "" {
			continue
		}

		if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
			return warnings, fmt.Errorf("setting config field %s: %w", fieldName, err)
		}

		validationRules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate")
		if validationRules == "" {
			continue
		}

		label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
		if label == "" {
			label = cliName
		}
		if err := l.validateField(fieldName, label, validationRules); err != nil {
			return warnings, err
		}
	}

	return warnings, nil
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}

	var value any

	// We start by defaulting the value to whatever was provided by the
	// configuration file.
	if l.File != nil {
		if configFileValue, ok := l.File.Config[cliName]; ok {
			switch fieldKind {
			case reflect.String:
				value = configFileValue
			case reflect.Bool:
				value, _ = strconv.ParseBool(configFileValue)
			case reflect.Int:
				value, _ = strconv.Atoi(configFileValue)
			default:
				return fmt.Errorf("unable to convert string to type %s", fieldKind)
			}
		}
	}

	// If a value hasn't been found in a config file, but there _is_ one
	// provided by the CLI context (flag or environment variable), use that.
	if value == nil || l.cliValueIsSet(cliName) {
		switch fieldKind {
		case reflect.String:
			value = l.CLI.String(cliName)
		case reflect.Bool:
			value = l.CLI.Bool(cliName)
		case reflect.Int:
			value = l.CLI.Int(cliName)
		default:
			return fmt.Errorf("unable to handle type: %s", fieldKind)
		}
	}

	if value != nil {
		if err := reflections.SetField(l.Config, fieldName, value); err != nil {
			return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
		}
	}

	return nil
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)
	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) {
		return true
	}

	// cli.Context#IsSet only checks to see if the command was set via the cli, not
	// via the environment. So here we do some hacks to find out the name of the
	// EnvVar, and return true if it was set.
	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName || envVar == "" {
			continue
		}
		if envVarStr, ok := envVar.(string); ok {
			return os.Getenv(strings.TrimSpace(envVarStr)) != ""
		}
	}

	return false
}

func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	fieldKind, _ := reflections.GetFieldKind(l.Config, fieldName)

	switch fieldKind {
	case reflect.String:
		return value == ""
	case reflect.Bool:
		return value == false
	case reflect.Int:
		return value == 0
	default:
		panic(fmt.Sprintf("can't determine empty-ness for field type %s", fieldKind))
	}
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}
		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}
