package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"amrsweep"

	"github.com/joho/godotenv"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	generic "go.viam.com/rdk/services/generic"
	"go.viam.com/utils/rpc"
)

func main() {
	var runPath, envPath string
	flag.StringVar(&runPath, "run", "sweep.yaml", "YAML file describing the sweep")
	flag.StringVar(&envPath, "env", ".env", "File with VIAM_ADDRESS, VIAM_API_KEY_ID and VIAM_API_KEY")
	flag.Parse()

	logger := logging.NewLogger("amr-sweep")
	if err := run(runPath, envPath, logger); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(runPath, envPath string, logger logging.Logger) error {
	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("not loading %s: %v", envPath, err)
	}
	addr := os.Getenv("VIAM_ADDRESS")
	if addr == "" {
		return fmt.Errorf("VIAM_ADDRESS is not set")
	}

	rf, err := amrsweep.LoadRunFile(runPath)
	if err != nil {
		return err
	}

	name, err := rf.Session().Review(amrsweep.NewPrompter(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}
	dir, err := amrsweep.CreateSessionDir(rf.RootDir, name)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	machine, err := client.New(ctx, addr, logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			os.Getenv("VIAM_API_KEY_ID"),
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: os.Getenv("VIAM_API_KEY"),
			})),
	)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer machine.Close(context.Background())

	ctrl, err := machine.ResourceByName(generic.Named(rf.Controller))
	if err != nil {
		return fmt.Errorf("finding controller %q: %w", rf.Controller, err)
	}

	logger.Infof("sweeping into %s", dir)
	res, err := ctrl.DoCommand(ctx, rf.Command(dir))
	if err != nil {
		return err
	}

	if summary, ok := res["summary"].(map[string]interface{}); ok {
		fmt.Printf("|AMR| = %.3e\n", summary["amr"])
		fmt.Printf("AMR%% = %.3e\n", summary["amr_ratio"])
		fmt.Printf("angle[argmax(r)] = %v\n", summary["angle_at_max"])
		fmt.Printf("angle[argmin(r)] = %v\n", summary["angle_at_min"])
	} else {
		fmt.Println(res["summary_error"])
	}
	fmt.Printf("Runtime: %v\n", res["runtime"])
	return nil
}
