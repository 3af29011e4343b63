package pos

import "fmt"

// Model is the gateway payment model of an account.
type Model string

const (
	ModelRegular Model = "regular"
	Model3D      Model = "3d"
	Model3DPay   Model = "3d_pay"
	Model3DHost  Model = "3d_host"
)

// Environment selects between a bank's test and production endpoints.
type Environment string

const (
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// Account is the per-bank credential bundle. It is constructed once per
// transaction from caller config and never mutated afterwards.
type Account struct {
	Bank         string
	ClientID     string
	TerminalID   string
	Username     string
	Password     string
	StoreKey     string
	MerchantType string
	Model        Model
	Environment  Environment
}

// AccountFromConfig builds an Account from a flat config map. Key names
// follow the gateway config convention: clientId, terminalId, username,
// password, storeKey, merchantType, model, environment.
func AccountFromConfig(bank string, conf map[string]string) (Account, error) {
	acc := Account{
		Bank:         bank,
		ClientID:     conf["clientId"],
		TerminalID:   conf["terminalId"],
		Username:     conf["username"],
		Password:     conf["password"],
		StoreKey:     conf["storeKey"],
		MerchantType: conf["merchantType"],
		Model:        Model(conf["model"]),
		Environment:  Environment(conf["environment"]),
	}

	if acc.Model == "" {
		acc.Model = ModelRegular
	}
	switch acc.Model {
	case ModelRegular, Model3D, Model3DPay, Model3DHost:
	default:
		return Account{}, &ValidationError{Bank: bank, Field: "model", Reason: fmt.Sprintf("unknown model %q", acc.Model)}
	}

	if acc.Environment == "" {
		acc.Environment = EnvTest
	}
	switch acc.Environment {
	case EnvTest, EnvProduction:
	default:
		return Account{}, &ValidationError{Bank: bank, Field: "environment", Reason: fmt.Sprintf("unknown environment %q", acc.Environment)}
	}

	return acc, nil
}

// IsProduction reports whether the account targets production endpoints.
func (a Account) IsProduction() bool {
	return a.Environment == EnvProduction
}

// Is3D reports whether the account uses any of the 3D Secure models.
func (a Account) Is3D() bool {
	return a.Model == Model3D || a.Model == Model3DPay || a.Model == Model3DHost
}
