package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/cli/sh"
	"github.com/robotalks/rm.go/pkg/env"
	fx "github.com/robotalks/rm.go/pkg/framework"
)

func init() {
	env.SetupFlags()
	sh.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.NewConfig().MustNewEnv()
	defer e.Close()

	shell := sh.New(e.Robot)
	loop := e.NewLoop().Add(shell)
	// the loop isn't running yet.
	shell.Refresh()
	runner := fx.NewRunner().Go(loop)

	err := shell.Run(flag.Args()...)
	runner.Stop()
	if werr := runner.Wait(); werr != nil {
		glog.Errorln(werr)
	}
	if err != nil {
		glog.Fatalln(err)
	}
}
