package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/registry"
)

// Instruction errors.
var (
	ErrUnknownProgram       = errors.New("unknown program")
	ErrUnknownInstruction   = errors.New("unknown instruction")
	ErrMalformedInstruction = errors.New("malformed instruction")
	ErrMissingAccounts      = errors.New("not enough accounts")
)

// Result codes added on top of registry.Code.
const (
	CodeBadSignature         = "bad_signature"
	CodeUnknownProgram       = "unknown_program"
	CodeUnknownInstruction   = "unknown_instruction"
	CodeMalformedInstruction = "malformed_instruction"
	CodeMissingAccounts      = "missing_accounts"
)

// Code maps runtime and registry errors to a result code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrBadSignature):
		return CodeBadSignature
	case errors.Is(err, ErrUnknownProgram):
		return CodeUnknownProgram
	case errors.Is(err, ErrUnknownInstruction):
		return CodeUnknownInstruction
	case errors.Is(err, ErrMalformedInstruction):
		return CodeMalformedInstruction
	case errors.Is(err, ErrMissingAccounts):
		return CodeMissingAccounts
	}
	return registry.Code(err)
}

// Registry is the subset of *registry.Registry the processor dispatches to.
type Registry interface {
	Programs() pda.Programs
	InitializeProvider(ctx context.Context, caller registry.Caller, params registry.ProviderParams) (*domain.Provider, error)
	InitializeOracle(ctx context.Context, caller registry.Caller, provider domain.Pubkey, params registry.OracleParams) (*domain.Oracle, error)
	UpdateOracle(ctx context.Context, caller registry.Caller, oracle, provider domain.Pubkey, attributes []domain.Attribute) (*domain.Oracle, error)
}

var _ Registry = (*registry.Registry)(nil)

// Receipt describes the outcome of one transaction.
type Receipt struct {
	Program     string        `json:"program"`     // provider | oracle
	Instruction string        `json:"instruction"` // initialize | update
	Account     domain.Pubkey `json:"account"`     // target account
	Result      string        `json:"result"`      // result code, "ok" on success
	Error       string        `json:"error,omitempty"`
}

// Processor verifies transactions and dispatches their instruction.
type Processor struct {
	registry Registry
	programs pda.Programs
	logger   *log.Logger
	metrics  *observability.Metrics
}

// ProcessorOptions contains configuration for creating a Processor.
type ProcessorOptions struct {
	Registry Registry
	Logger   *log.Logger
	Metrics  *observability.Metrics
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		registry: opts.Registry,
		programs: opts.Registry.Programs(),
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Process runs tx. The receipt is always returned, carrying the result code;
// the error is non-nil when the instruction failed.
func (p *Processor) Process(ctx context.Context, tx *Transaction) (*Receipt, error) {
	receipt := &Receipt{}
	if len(tx.Instruction.Accounts) > 0 {
		receipt.Account = tx.Instruction.Accounts[0]
	}

	err := p.process(ctx, tx, receipt)
	receipt.Result = Code(err)
	if err != nil {
		receipt.Error = err.Error()
		p.logger.Printf("%s %s on %s rejected (%s): %v", receipt.Program, receipt.Instruction, receipt.Account, receipt.Result, err)
	}
	p.metrics.RecordTransaction(receipt.Result)
	return receipt, err
}

func (p *Processor) process(ctx context.Context, tx *Transaction, receipt *Receipt) error {
	signers, err := tx.VerifiedSigners()
	if err != nil {
		return err
	}

	ix := tx.Instruction
	tag, err := codec.InstructionTag(ix.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInstruction, err)
	}

	switch ix.ProgramID {
	case p.programs.Provider:
		receipt.Program = "provider"
		return p.processProvider(ctx, ix, tag, signers, receipt)
	case p.programs.Oracle:
		receipt.Program = "oracle"
		return p.processOracle(ctx, ix, tag, signers, receipt)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}
}

// processProvider handles initialize(name, size, bump) with accounts
// [provider, user, system_program].
func (p *Processor) processProvider(ctx context.Context, ix Instruction, tag codec.Discriminator, signers []domain.Pubkey, receipt *Receipt) error {
	if tag != codec.InitializeInstruction {
		return fmt.Errorf("%w: provider program tag %x", ErrUnknownInstruction, tag)
	}
	receipt.Instruction = "initialize"

	args, err := codec.DecodeProviderInitialize(ix.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInstruction, err)
	}
	accounts, err := requireAccounts(ix, 3)
	if err != nil {
		return err
	}
	providerAcct, user := accounts[0], accounts[1]

	caller, err := userCaller(user, signers)
	if err != nil {
		return err
	}

	_, err = p.registry.InitializeProvider(ctx, caller, registry.ProviderParams{
		Name:     args.Name,
		Capacity: args.Capacity,
		Bump:     args.Bump,
		Address:  providerAcct,
	})
	return err
}

// processOracle handles initialize(name, data, bump) with accounts
// [oracle, oracle_provider, user, system_program] and update(data) with
// accounts [oracle, provider, user, system_program].
func (p *Processor) processOracle(ctx context.Context, ix Instruction, tag codec.Discriminator, signers []domain.Pubkey, receipt *Receipt) error {
	switch tag {
	case codec.InitializeInstruction:
		receipt.Instruction = "initialize"

		args, err := codec.DecodeOracleInitialize(ix.Data)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedInstruction, err)
		}
		accounts, err := requireAccounts(ix, 4)
		if err != nil {
			return err
		}
		caller, err := userCaller(accounts[2], signers)
		if err != nil {
			return err
		}
		_, err = p.registry.InitializeOracle(ctx, caller, accounts[1], registry.OracleParams{
			Name:       args.Name,
			Attributes: args.Attributes,
			Bump:       args.Bump,
			Address:    accounts[0],
		})
		return err

	case codec.UpdateInstruction:
		receipt.Instruction = "update"

		args, err := codec.DecodeOracleUpdate(ix.Data)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedInstruction, err)
		}
		accounts, err := requireAccounts(ix, 4)
		if err != nil {
			return err
		}
		caller, err := userCaller(accounts[2], signers)
		if err != nil {
			return err
		}
		_, err = p.registry.UpdateOracle(ctx, caller, accounts[0], accounts[1], args.Attributes)
		return err

	default:
		return fmt.Errorf("%w: oracle program tag %x", ErrUnknownInstruction, tag)
	}
}

// requireAccounts checks the account count and that the last expected
// account is the system program.
func requireAccounts(ix Instruction, n int) ([]domain.Pubkey, error) {
	if len(ix.Accounts) < n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMissingAccounts, len(ix.Accounts), n)
	}
	if ix.Accounts[n-1] != domain.SystemProgramID {
		return nil, fmt.Errorf("%w: account %d is %s, want the system program", registry.ErrAccountMismatch, n-1, ix.Accounts[n-1])
	}
	return ix.Accounts[:n], nil
}

// userCaller requires the user account to have signed. Only the user's key
// is passed on, so a co-signing provider owner cannot stand in for it.
func userCaller(user domain.Pubkey, signers []domain.Pubkey) (registry.Caller, error) {
	if !registry.Authorize(user, signers) {
		return registry.Caller{}, fmt.Errorf("%w: user %s did not sign", registry.ErrUnauthorized, user)
	}
	return registry.SignedBy(user), nil
}
