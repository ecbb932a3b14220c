package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/rm.go/pkg/env"
	fx "github.com/robotalks/rm.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.NewConfig().MustNewEnv()
	defer e.Close()

	err := fx.NewRunner().HandleSignals().Go(e.NewLoop()).Wait()
	if err != nil {
		glog.Errorln(err)
	}
}
