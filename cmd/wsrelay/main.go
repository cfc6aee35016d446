/*
Package main 读取配置文件, 然后监听 websocket 隧道.

命令行参数请使用 --help / -h 查看详情, 配置文件格式 见 config 包的文档.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/e1732a364fed/ws_relay/config"
	"github.com/e1732a364fed/ws_relay/machine"
	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var (
	configFileName string
	listenAddr     string
	startMProf     bool
	printVer       bool

	Version string = "[version_undefined]" //版本号可由 -ldflags "-X 'main.Version=v1.x.x'" 指定
)

const defaultConfFn = "server.toml"

func init() {
	flag.StringVar(&configFileName, "c", defaultConfFn, "config file name")
	flag.StringVar(&listenAddr, "L", "", "listen address, overrides [listen].addr")
	flag.BoolVar(&startMProf, "mp", false, "memory pprof")
	flag.BoolVar(&printVer, "v", false, "print version and exit")
}

func versionStr() string {
	return fmt.Sprintf("ws_relay %s, %s %s %s\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func main() {
	os.Exit(mainFunc())
}

func mainFunc() (result int) {
	defer func() {
		if r := recover(); r != nil {
			if ce := utils.CanLogErr("Captured panic!"); ce != nil {
				ce.Write(zap.Any("err:", r), zap.String("stacktrace", string(debug.Stack())))
			} else {
				log.Println("panic captured!", r, "\n", string(debug.Stack()))
			}
			result = -3
		}
	}()

	utils.ParseFlags()

	fmt.Print(versionStr())
	if printVer {
		return 0
	}

	if startMProf {
		//若不使用 NoShutdownHook, 则 我们ctrl+c退出时不会产生 pprof文件
		p := profile.Start(profile.MemProfile, profile.MemProfileRate(1), profile.NoShutdownHook)
		defer p.Stop()
	}

	conf, err := config.LoadFile(configFileName)
	if err != nil {
		log.Println("load config failed:", err)
		return -1
	}
	conf.App.Setup()
	if listenAddr != "" {
		conf.Listen.Addr = listenAddr
	}

	utils.InitLog("Program started")
	defer func() {
		if ce := utils.CanLogInfo("Program exited"); ce != nil {
			ce.Write()
		}
		utils.ZapLogger.Sync()
	}()

	if ce := utils.CanLogDebug("All Given Flags"); ce != nil {
		fs := make(map[string]string, len(utils.GivenFlags))
		for k, f := range utils.GivenFlags {
			fs[k] = f.Value.String()
		}
		ce.Write(zap.Any("flags", fs))
	}

	m, err := machine.New(conf)
	if err != nil {
		if ce := utils.CanLogErr("can not create machine"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}
	defer m.Close()

	if err = m.Start(); err != nil {
		if ce := utils.CanLogErr("can not start"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}

	<-utils.GetSystemKillChan()
	return 0
}
