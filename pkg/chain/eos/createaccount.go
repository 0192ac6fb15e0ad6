package eos

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multichain/pkg/chain"
	"github.com/kollektive-hackathon/multichain/pkg/keystore"
)

const (
	DefaultMaxNameAttempts = 10
	DefaultRAMBytes        = 3000
	DefaultStake           = "1.0000 EOS"
)

type CreateAccountOptions struct {
	chain.CreateAccountOptionsBase
	Creator           string `json:"creator"`
	CreatorPermission string `json:"creatorPermission,omitempty"`
	// AccountName is generated when empty.
	AccountName string `json:"accountName,omitempty"`
	OwnerKey    string `json:"ownerKey,omitempty"`
	ActiveKey   string `json:"activeKey,omitempty"`
	// Password and Salt encrypt generated private keys.
	Password string `json:"-"`
	Salt     string `json:"-"`
	// Recycle lets an existing account holding only the unused key be taken over.
	Recycle         bool             `json:"recycle,omitempty"`
	RAMBytes        uint32           `json:"ramBytes,omitempty"`
	StakeNet        string           `json:"stakeNet,omitempty"`
	StakeCPU        string           `json:"stakeCpu,omitempty"`
	Multisig        *MultisigOptions `json:"multisig,omitempty"`
	MaxNameAttempts int              `json:"maxNameAttempts,omitempty"`
}

func (CreateAccountOptions) ChainType() chain.ChainType { return chain.EOS }

func (o CreateAccountOptions) withDefaults() CreateAccountOptions {
	if o.CreatorPermission == "" {
		o.CreatorPermission = "active"
	}
	if o.RAMBytes == 0 {
		o.RAMBytes = DefaultRAMBytes
	}
	if o.StakeNet == "" {
		o.StakeNet = DefaultStake
	}
	if o.StakeCPU == "" {
		o.StakeCPU = DefaultStake
	}
	if o.MaxNameAttempts <= 0 {
		o.MaxNameAttempts = DefaultMaxNameAttempts
	}
	return o
}

// GenerateAccountName builds a 12 character name from the current time
// followed by random characters.
func GenerateAccountName(now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 31)
	var sb strings.Builder
	for _, c := range stamp {
		sb.WriteByte(nameAlphabet[strings.IndexRune("0123456789abcdefghijklmnopqrstu", c)])
	}
	random := uuid.New()
	for i := 0; sb.Len() < MaxNameLength && i < len(random); i++ {
		sb.WriteByte(nameAlphabet[int(random[i])%len(nameAlphabet)])
	}
	return sb.String()[:MaxNameLength]
}

type CreateAccount struct {
	state   *ChainState
	helper  *ActionHelper
	opts    CreateAccountOptions
	newName func() string

	accountName string
	keys        []chain.KeyPair
	recycled    bool
	tx          *Transaction
}

var _ chain.CreateAccount = (*CreateAccount)(nil)

func NewCreateAccount(state *ChainState, opts CreateAccountOptions) (*CreateAccount, error) {
	opts = opts.withDefaults()
	if !IsValidName(opts.Creator) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "invalid creator %q", opts.Creator)
	}
	if opts.AccountName != "" && !IsValidName(opts.AccountName) {
		return nil, chain.NewError(chain.ErrInvalidOptions, "invalid account name %q", opts.AccountName)
	}
	for _, k := range []string{opts.OwnerKey, opts.ActiveKey} {
		if k != "" && !IsValidPublicKey(k) {
			return nil, chain.NewError(chain.ErrInvalidOptions, "invalid public key %q", k)
		}
	}
	return &CreateAccount{
		state:   state,
		helper:  NewActionHelper(state),
		opts:    opts,
		newName: func() string { return GenerateAccountName(time.Now()) },
	}, nil
}

func (c *CreateAccount) Compose(ctx context.Context) error {
	if c.opts.Multisig != nil {
		ms, err := NewMultisig(*c.opts.Multisig)
		if err != nil {
			return err
		}
		if c.opts.AccountName == "" {
			c.opts.AccountName = ms.Address()
		}
	}
	if err := c.resolveName(ctx); err != nil {
		return err
	}
	owner, active, err := c.resolveAuthorities()
	if err != nil {
		return err
	}

	var actions []chain.Action
	if c.recycled {
		a, err := c.action(ctx, SystemAccount, "updateauth", c.accountName, "owner", map[string]any{
			"account":    c.accountName,
			"permission": "active",
			"parent":     "owner",
			"auth":       active,
		})
		if err != nil {
			return err
		}
		actions = append(actions, *a)
	} else {
		steps := []struct {
			name string
			data map[string]any
		}{
			{"newaccount", map[string]any{"creator": c.opts.Creator, "name": c.accountName, "owner": owner, "active": active}},
			{"buyrambytes", map[string]any{"payer": c.opts.Creator, "receiver": c.accountName, "bytes": uint64(c.opts.RAMBytes)}},
			{"delegatebw", map[string]any{
				"from":               c.opts.Creator,
				"receiver":           c.accountName,
				"stake_net_quantity": c.opts.StakeNet,
				"stake_cpu_quantity": c.opts.StakeCPU,
				"transfer":           false,
			}},
		}
		for _, s := range steps {
			a, err := c.action(ctx, SystemAccount, s.name, c.opts.Creator, c.opts.CreatorPermission, s.data)
			if err != nil {
				return err
			}
			actions = append(actions, *a)
		}
	}

	tx, err := NewTransaction(c.state, nil)
	if err != nil {
		return err
	}
	if err := tx.SetActions(actions...); err != nil {
		return err
	}
	c.tx = tx
	log.Debug().Str("account", c.accountName).Bool("recycled", c.recycled).Msg("eos create account composed")
	return nil
}

func (c *CreateAccount) action(ctx context.Context, contract, name, actor, permission string, data map[string]any) (*Action, error) {
	return c.helper.FromInput(ctx, &CanonicalAction{
		Account:       contract,
		Name:          name,
		Authorization: []PermissionLevel{{Actor: actor, Permission: permission}},
		Data:          data,
	})
}

// resolveName picks the requested name or generates a free one, giving up
// after MaxNameAttempts collisions.
func (c *CreateAccount) resolveName(ctx context.Context) error {
	if c.opts.AccountName != "" {
		acc, err := LoadAccount(ctx, c.state, c.opts.AccountName)
		if err != nil {
			return err
		}
		if acc.Exists() {
			if !c.opts.Recycle || !acc.CanBeRecycled() {
				return chain.NewError(chain.ErrAccountAlreadyExists, "account %s already exists", c.opts.AccountName)
			}
			c.recycled = true
		}
		c.accountName = c.opts.AccountName
		return nil
	}
	for attempt := 1; attempt <= c.opts.MaxNameAttempts; attempt++ {
		name := c.newName()
		acc, err := LoadAccount(ctx, c.state, name)
		if err != nil {
			return err
		}
		if !acc.Exists() {
			c.accountName = name
			return nil
		}
		log.Debug().Str("account", name).Int("attempt", attempt).Msg("generated account name is taken")
	}
	return chain.NewError(chain.ErrMaxAccountNameAttempts, "no free account name after %d attempts", c.opts.MaxNameAttempts)
}

func (c *CreateAccount) resolveAuthorities() (map[string]any, map[string]any, error) {
	if c.opts.Multisig != nil {
		ms := c.opts.Multisig
		auth := Authority(uint32(ms.Threshold), sortedOwnerKeys(ms.Owners)...)
		return auth, auth, nil
	}
	ownerKey, activeKey := c.opts.OwnerKey, c.opts.ActiveKey
	c.keys = nil
	if ownerKey == "" {
		kp, err := c.generateKey()
		if err != nil {
			return nil, nil, err
		}
		ownerKey = string(kp.PublicKey)
	}
	if activeKey == "" {
		kp, err := c.generateKey()
		if err != nil {
			return nil, nil, err
		}
		activeKey = string(kp.PublicKey)
	}
	owner, _ := ParsePublicKey(ownerKey)
	active, _ := ParsePublicKey(activeKey)
	return Authority(1, owner.String()), Authority(1, active.String()), nil
}

func sortedOwnerKeys(owners []string) []string {
	keys := make([]PublicKey, 0, len(owners))
	for _, o := range owners {
		k, err := ParsePublicKey(o)
		if err == nil {
			keys = append(keys, k)
		}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

func (c *CreateAccount) generateKey() (chain.KeyPair, error) {
	pk, err := GeneratePrivateKey()
	if err != nil {
		return chain.KeyPair{}, err
	}
	kp := chain.KeyPair{
		PublicKey:  chain.PublicKey(pk.PublicKey().String()),
		PrivateKey: chain.PrivateKey(pk.String()),
	}
	if c.opts.Password != "" {
		enc, err := keystore.Encrypt(pk.String(), c.opts.Password, c.opts.Salt)
		if err != nil {
			return chain.KeyPair{}, err
		}
		kp.PrivateKeyEncrypted = enc
	}
	c.keys = append(c.keys, kp)
	return kp, nil
}

func (c *CreateAccount) AccountName() string {
	return c.accountName
}

func (c *CreateAccount) GeneratedKeys() []chain.KeyPair {
	return append([]chain.KeyPair(nil), c.keys...)
}

func (c *CreateAccount) RequiresTransaction() bool {
	return true
}

func (c *CreateAccount) Recycled() bool {
	return c.recycled
}

func (c *CreateAccount) Transaction() chain.Transaction {
	if c.tx == nil {
		return nil
	}
	return c.tx
}
