// 包 config 读取服务端的 YAML 配置文件，环境变量可以覆盖其中的部分字段
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/CamberLoid/Chimata-Payroll/internal/authz"
	"github.com/CamberLoid/Chimata-Payroll/internal/payroll"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenPort       = "16001"
	DefaultListenAddr       = "127.0.0.1"
	DefaultConfigDirPath    = ".config/Chimata-Payroll"
	DefaultDatabaseFileName = "server.db"
	DefaultOracleInterval   = 2 * time.Second
	DefaultReviewDeadline   = 10 * time.Minute
	DefaultLogLevel         = "info"
)

// 环境变量
const (
	EnvConfigPath = "PAYROLL_CONFIG"
	EnvDBPath     = "PAYROLL_DB_PATH"
	EnvListenAddr = "PAYROLL_LISTEN_ADDR"
)

type Config struct {
	Version int `yaml:"version"`

	ListenAddr string `yaml:"listen_addr"`
	ListenPort string `yaml:"listen_port"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`

	// Owner 是账本所有者，绕过所有角色检查
	Owner string `yaml:"owner"`
	// Self 是账本自身的主体标识，留空时每次启动随机生成
	Self string `yaml:"self"`

	Oracle Oracle `yaml:"oracle"`

	// Signers 是受信任的输入签名公钥文件（JSON 格式）
	Signers []string `yaml:"signers"`

	Policy *payroll.Policy   `yaml:"policy"`
	Roles  []RoleAssignment `yaml:"roles"`
}

type Oracle struct {
	Principal string        `yaml:"principal"`
	Interval  time.Duration `yaml:"interval"`
	Deadline  time.Duration `yaml:"deadline"`
}

type RoleAssignment struct {
	Principal string `yaml:"principal"`
	Role      string `yaml:"role"`
}

// DefaultDBPath 返回 ~/.config/Chimata-Payroll/server.db
func DefaultDBPath() string {
	homedir, _ := os.UserHomeDir()
	return filepath.Join(homedir, DefaultConfigDirPath, DefaultDatabaseFileName)
}

// Default 返回默认配置。Policy 预先填入默认策略，YAML 中只需写出要覆盖的字段。
func Default() Config {
	policy := payroll.DefaultPolicy()
	return Config{
		Version:    1,
		ListenAddr: DefaultListenAddr,
		ListenPort: DefaultListenPort,
		DBPath:     DefaultDBPath(),
		LogLevel:   DefaultLogLevel,
		Oracle: Oracle{
			Interval: DefaultOracleInterval,
			Deadline: DefaultReviewDeadline,
		},
		Policy: &policy,
	}
}

// Parse 在默认值之上解析 YAML，然后校验
func Parse(b []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "config: parse yaml")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load 读取配置文件。path 为空时使用 PAYROLL_CONFIG；两者都为空则只使用默认值。
// 最后应用环境变量覆盖。
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: read file")
		}
		if c, err = Parse(b); err != nil {
			return Config{}, err
		}
	}
	c.applyEnv()
	return c, c.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
}

func (c Config) Validate() error {
	if c.Version != 1 {
		return errors.Errorf("config: unsupported version %d", c.Version)
	}
	for _, field := range []struct{ name, value string }{
		{"owner", c.Owner}, {"self", c.Self}, {"oracle.principal", c.Oracle.Principal},
	} {
		if field.value == "" {
			continue
		}
		if _, err := uuid.Parse(field.value); err != nil {
			return errors.Wrapf(err, "config: %s", field.name)
		}
	}
	if c.Oracle.Interval <= 0 {
		return errors.New("config: oracle.interval must be positive")
	}
	for i, r := range c.Roles {
		if _, err := uuid.Parse(r.Principal); err != nil {
			return errors.Wrapf(err, "config: roles[%d].principal", i)
		}
		if _, err := authz.ParseRole(r.Role); err != nil {
			return errors.Wrapf(err, "config: roles[%d]", i)
		}
	}
	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			return errors.Wrap(err, "config: policy")
		}
	}
	return nil
}

func (c Config) ListenAddress() string {
	return c.ListenAddr + ":" + c.ListenPort
}

// parseOptional 把空字符串解析为 uuid.Nil
func parseOptional(s string) uuid.UUID {
	if s == "" {
		return uuid.Nil
	}
	return uuid.MustParse(s)
}

// OwnerID 返回所有者标识；调用前应已通过 Validate
func (c Config) OwnerID() uuid.UUID { return parseOptional(c.Owner) }

func (c Config) SelfID() uuid.UUID { return parseOptional(c.Self) }

func (c Config) OraclePrincipal() uuid.UUID { return parseOptional(c.Oracle.Principal) }
