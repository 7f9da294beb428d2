package core

import "samplecore/pkg/domain"

type (
	EntityType             = domain.EntityType
	Severity               = domain.Severity
	Base                   = domain.Base
	SampleSet              = domain.SampleSet
	Membership             = domain.Membership
	EnrollmentSummary      = domain.EnrollmentSummary
	ProgramSummary         = domain.ProgramSummary
	AnswerRef              = domain.AnswerRef
	Change                 = domain.Change
	Action                 = domain.Action
	Violation              = domain.Violation
	Result                 = domain.Result
	RuleViolationError     = domain.RuleViolationError
	ContractViolationError = domain.ContractViolationError
	MutationReport         = domain.MutationReport
	MutationPlan           = domain.MutationPlan
	ReportMessage          = domain.ReportMessage
	MessageLevel           = domain.MessageLevel
	CertifyReport          = domain.CertifyReport
	Rule                   = domain.Rule
	RulesEngine            = domain.RulesEngine
)

const (
	EntitySampleSet  = domain.EntitySampleSet
	EntityMembership = domain.EntityMembership
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	LevelDebug   = domain.LevelDebug
	LevelInfo    = domain.LevelInfo
	LevelWarning = domain.LevelWarning
	LevelError   = domain.LevelError
)
