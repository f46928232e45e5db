package main

import (
	"os"

	"github.com/CamberLoid/Chimata-Payroll/internal/log"
	"github.com/urfave/cli/v2"
)

// CLI
func main() {
	app := cli.App{
		Name:     "Chimata-Payroll",
		HelpName: "chimata-payroll",
		Version:  "0.99.indev",
		Usage:    "CLI Interface of Project Chimata-Payroll/Client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "server URL",
				Value:   "http://127.0.0.1:16001",
				EnvVars: []string{"PAYROLL_SERVER"},
			},
			&cli.StringFlag{
				Name:    "keys",
				Usage:   "key file of the acting user",
				EnvVars: []string{"PAYROLL_KEYS"},
			},
		},
		Commands: []*cli.Command{
			keygenCommand,
			encryptCommand,
			submitCommand,
			payrollActionCommand("submit-for-review", "move a Draft payroll to Submitted (employee)"),
			payrollActionCommand("begin-review", "move a Submitted payroll to UnderReview (hr)"),
			payrollActionCommand("request-review", "run the encrypted review and request decryption (hr)"),
			payrollActionCommand("approve", "schedule an Approved or Adjusted payroll (finance)"),
			payrollActionCommand("mark-paid", "mark a Processing payroll as paid (payroll-processor)"),
			payCommand,
			getCommand,
			reviewCommand,
			ownCommand,
			profileCommand,
			exportCommand,
			registerKeyCommand,
			departmentCommand,
			roleCommand,
			statsCommand,
			demoCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Default().Fatal("command failed", "err", err)
	}
}
