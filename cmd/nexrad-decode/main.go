package main

import (
	"os"
	"runtime/pprof"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/sirupsen/logrus"
)

var cli struct {
	Args struct {
		Filename string
	} `positional-args:"yes" required:"yes"`
	LogLevel         string `short:"l" long:"log-level" description:"logging level" choice:"error" choice:"info" choice:"debug" choice:"trace" default:"info"`
	ShowVolumeHeader bool   `long:"show-volume-header" description:"dumps out the contents of the Volume Header"`
	ProfileOut       string `long:"profile-out" description:"write a CPU profile to this path (view with 'go tool pprof <path>')"`
}

func main() {

	// parse the input args
	_, err := flags.Parse(&cli)
	if err != nil {
		os.Exit(1)
	}

	// set the logging level
	errorLevels := map[string]logrus.Level{
		"error": logrus.ErrorLevel,
		"info":  logrus.InfoLevel,
		"debug": logrus.DebugLevel,
		"trace": logrus.TraceLevel,
	}
	logrus.SetLevel(errorLevels[cli.LogLevel])

	if cli.ProfileOut != "" {
		f, err := os.Create(cli.ProfileOut)
		if err != nil {
			logrus.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// decode it
	logrus.Info(color.CyanString("decoding ", cli.Args.Filename))
	f2, err := os.Open(cli.Args.Filename)
	if err != nil {
		logrus.Fatal(err)
	}
	defer f2.Close()

	ar2, err := archive2.NewArchive2(f2)
	if err != nil {
		logrus.Fatal(err)
	}
	ar2.IndexFile()

	if cli.ShowVolumeHeader {
		logrus.Infof("%+v", ar2.VolumeHeader)
	}
}
