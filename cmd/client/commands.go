package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/clientlib"
	"github.com/CamberLoid/Chimata-Payroll/internal/fhe"
	"github.com/CamberLoid/Chimata-Payroll/internal/key"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// loadClient 读取 --keys 指定的密钥文件（默认 ~/.config/Chimata-Payroll/keys.json）
func loadClient(c *cli.Context) (*clientlib.Client, error) {
	path := c.String("keys")
	if path == "" {
		path = clientlib.ConfigKeyFilePath
	}
	u, err := clientlib.ImportUserFromFile(path)
	if err != nil {
		return nil, err
	}
	return clientlib.NewClient(c.String("server"), u), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var idFlag = &cli.StringFlag{Name: "id", Usage: "payroll id (0x-prefixed hex)", Required: true}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "generate a key file and export the signing public key",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "user name"},
		&cli.StringFlag{Name: "out", Usage: "key file path", Value: clientlib.ConfigKeyFilePath},
		&cli.StringFlag{Name: "pubkey", Usage: "write the signing public key JSON here for the server's signer list"},
	},
	Action: func(c *cli.Context) error {
		u, err := clientlib.NewUserWithKeys(c.String("name"))
		if err != nil {
			return err
		}
		if err := key.SaveKeyChain(c.String("out"), u.Keys); err != nil {
			return err
		}
		if p := c.String("pubkey"); p != "" {
			if err := os.WriteFile(p, key.EncodeECDSAPubkeyToJson(u.Keys.Signing.PublicKey), 0o644); err != nil {
				return err
			}
		}
		fmt.Println(u.Identifier)
		return nil
	},
}

var encryptCommand = &cli.Command{
	Name:  "encrypt",
	Usage: "produce a signed encrypted input for the acting user",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "width", Value: 128},
		&cli.Uint64Flag{Name: "value", Required: true},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		w := fhe.Width(c.Uint("width"))
		if !w.Valid() {
			return errors.Wrapf(fhe.ErrInvalidWidth, "%d", c.Uint("width"))
		}
		in, err := client.User.Encrypt(w, c.Uint64("value"))
		if err != nil {
			return err
		}
		return printJSON(in)
	},
}

var submitCommand = &cli.Command{
	Name:      "submit",
	Usage:     "encrypt and submit a payroll read from a JSON file of plaintext fields",
	ArgsUsage: "<payroll.json>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "level", Value: "Mid"},
		&cli.StringFlag{Name: "db", Usage: "client database", Value: clientlib.ConfigDatabasePath},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(c.Args().First())
		if err != nil {
			return err
		}
		var in clientlib.PayrollInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return err
		}
		level, err := payroll.ParseEmploymentLevel(c.String("level"))
		if err != nil {
			return err
		}

		nonce := clientlib.GenNonce()
		id := payroll.NewID(client.User.Identifier, nonce)
		s, err := client.User.BuildSubmission(id, level, in)
		if err != nil {
			return err
		}
		summary, err := client.SubmitPayroll(s)
		if err != nil {
			return err
		}

		store, err := clientlib.OpenDatabase(c.String("db"))
		if err == nil {
			defer store.Close()
			err = clientlib.RecordSubmission(store, clientlib.Submission{
				PayrollID: id, Employee: client.User.Identifier, Nonce: nonce, SubmittedAt: summary.SubmittedAt,
			})
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: submission not recorded locally:", err)
		}
		return printJSON(summary)
	},
}

func payrollActionCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{idFlag},
		Action: func(c *cli.Context) error {
			client, err := loadClient(c)
			if err != nil {
				return err
			}
			id, err := payroll.ParseID(c.String("id"))
			if err != nil {
				return err
			}
			switch name {
			case "submit-for-review":
				return client.SubmitForReview(id)
			case "begin-review":
				return client.BeginReview(id)
			case "request-review":
				reqID, err := client.RequestReview(id)
				if err == nil {
					fmt.Println(reqID)
				}
				return err
			case "approve":
				return client.ApprovePayroll(id)
			case "mark-paid":
				return client.MarkPaid(id)
			}
			return errors.Errorf("unknown action %s", name)
		},
	}
}

var payCommand = &cli.Command{
	Name:  "pay",
	Usage: "record an encrypted payment against a scheduled payroll (payroll-processor)",
	Flags: []cli.Flag{
		idFlag,
		&cli.Uint64Flag{Name: "gross", Required: true},
		&cli.Uint64Flag{Name: "net", Required: true},
		&cli.Uint64Flag{Name: "tax", Required: true},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		id, err := payroll.ParseID(c.String("id"))
		if err != nil {
			return err
		}
		in, err := client.User.BuildPayment(c.Uint64("gross"), c.Uint64("net"), c.Uint64("tax"))
		if err != nil {
			return err
		}
		paymentID, err := client.RecordPayment(id, in)
		if err != nil {
			return err
		}
		fmt.Println(paymentID)
		return nil
	},
}

var getCommand = &cli.Command{
	Name:  "get",
	Usage: "show a payroll summary, its revealed review and payment records",
	Flags: []cli.Flag{idFlag},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		id, err := payroll.ParseID(c.String("id"))
		if err != nil {
			return err
		}
		summary, err := client.GetPayroll(id)
		if err != nil {
			return err
		}
		records, err := client.GetPaymentRecords(id)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"summary": summary, "payments": records})
	},
}

var ownCommand = &cli.Command{
	Name:  "own",
	Usage: "show the acting employee's own encrypted payroll",
	Flags: []cli.Flag{idFlag},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		id, err := payroll.ParseID(c.String("id"))
		if err != nil {
			return err
		}
		p, err := client.GetOwnPayroll(id)
		if err != nil {
			return err
		}
		return printJSON(p)
	},
}

var profileCommand = &cli.Command{
	Name:  "profile",
	Usage: "show an employee profile; defaults to the acting user",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "employee", Usage: "employee uuid"},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		employee := client.User.Identifier
		if s := c.String("employee"); s != "" {
			if employee, err = uuid.Parse(s); err != nil {
				return errors.Wrap(err, "parse employee")
			}
		}
		profile, err := client.GetEmployeeProfile(employee)
		if err != nil {
			return err
		}
		ids, err := client.GetEmployeePayrolls(employee)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"profile": profile, "payrolls": ids})
	},
}

var reviewCommand = &cli.Command{
	Name:  "review",
	Usage: "print the decrypted review of a payroll",
	Flags: []cli.Flag{idFlag},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		id, err := payroll.ParseID(c.String("id"))
		if err != nil {
			return err
		}
		review, err := client.GetDecryptedReview(id)
		if err != nil {
			return err
		}
		out, err := review.MarshalToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "export a review under the acting user's viewing key and open it locally",
	Flags: []cli.Flag{
		idFlag,
		&cli.BoolFlag{Name: "registered", Usage: "use the viewing key registered on the server"},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		id, err := payroll.ParseID(c.String("id"))
		if err != nil {
			return err
		}
		var vk []byte
		if !c.Bool("registered") {
			vk = client.User.ViewingKey()
		}
		exp, err := client.ExportReview(id, vk)
		if err != nil {
			return err
		}
		opened, err := client.User.OpenExport(exp)
		if err != nil {
			return err
		}
		return printJSON(opened)
	},
}

var registerKeyCommand = &cli.Command{
	Name:  "register-key",
	Usage: "register the acting user's viewing public key on the server",
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		return client.RegisterViewingKey()
	},
}

var departmentCommand = &cli.Command{
	Name:  "department",
	Usage: "create, show or toggle a department budget",
	Subcommands: []*cli.Command{
		{
			Name: "create",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "dept", Required: true},
				&cli.StringFlag{Name: "name"},
				&cli.UintFlag{Name: "year", Required: true},
				&cli.Uint64Flag{Name: "allocated", Required: true},
			},
			Action: func(c *cli.Context) error {
				client, err := loadClient(c)
				if err != nil {
					return err
				}
				in, err := client.User.BuildDepartment(uint32(c.Uint("dept")), c.String("name"), uint16(c.Uint("year")), c.Uint64("allocated"))
				if err != nil {
					return err
				}
				return client.CreateDepartmentBudget(in)
			},
		},
		{
			Name:  "get",
			Flags: []cli.Flag{&cli.UintFlag{Name: "dept", Required: true}},
			Action: func(c *cli.Context) error {
				client, err := loadClient(c)
				if err != nil {
					return err
				}
				d, err := client.GetDepartmentBudget(uint32(c.Uint("dept")))
				if err != nil {
					return err
				}
				return printJSON(d)
			},
		},
		{
			Name: "set-active",
			Flags: []cli.Flag{
				&cli.UintFlag{Name: "dept", Required: true},
				&cli.BoolFlag{Name: "active"},
			},
			Action: func(c *cli.Context) error {
				client, err := loadClient(c)
				if err != nil {
					return err
				}
				return client.SetDepartmentActive(uint32(c.Uint("dept")), c.Bool("active"))
			},
		},
	},
}

var roleCommand = &cli.Command{
	Name:  "role",
	Usage: "grant or revoke a role (owner)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "principal", Required: true},
		&cli.StringFlag{Name: "role", Required: true},
		&cli.BoolFlag{Name: "revoke"},
	},
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		principal, err := uuid.Parse(c.String("principal"))
		if err != nil {
			return err
		}
		role, err := authz.ParseRole(c.String("role"))
		if err != nil {
			return err
		}
		if c.Bool("revoke") {
			return client.RevokeRole(principal, role)
		}
		return client.GrantRole(principal, role)
	},
}

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "show ledger counters",
	Action: func(c *cli.Context) error {
		client, err := loadClient(c)
		if err != nil {
			return err
		}
		stats, err := client.GetStats()
		if err != nil {
			return err
		}
		pretty.Println(stats)
		return nil
	},
}
