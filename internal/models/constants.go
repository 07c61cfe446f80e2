package models

// ValidTransactionStates список валидных состояний транзакций
var ValidTransactionStates = map[string]struct{}{
	TransactionStatePending:         {},
	TransactionStateApproved:        {},
	TransactionStateFailed:          {},
	TransactionStatePaidButCollided: {},
}

// ValidClaimStatuses список валидных статусов выплат по позициям
var ValidClaimStatuses = map[string]struct{}{
	ClaimStatusInvalid:   {},
	ClaimStatusPending:   {},
	ClaimStatusUnclaimed: {},
	ClaimStatusClaimed:   {},
}

// ValidDisputeStatuses список валидных статусов споров
var ValidDisputeStatuses = map[string]struct{}{
	DisputeStatusOpen:            {},
	DisputeStatusInProgress:      {},
	DisputeStatusWaitingResponse: {},
	DisputeStatusResolved:        {},
	DisputeStatusClosed:          {},
}

// ValidReportStatuses список валидных статусов жалоб
var ValidReportStatuses = map[string]struct{}{
	ReportStatusPending:     {},
	ReportStatusUnderReview: {},
	ReportStatusResolved:    {},
	ReportStatusClosed:      {},
}

// ValidPriorities список валидных приоритетов
var ValidPriorities = map[string]struct{}{
	PriorityLow:    {},
	PriorityMedium: {},
	PriorityHigh:   {},
	PriorityUrgent: {},
}

// ValidMessageKinds список валидных типов сообщений спора
var ValidMessageKinds = map[string]struct{}{
	MessageKindMessage:   {},
	MessageKindSystem:    {},
	MessageKindAdminNote: {},
}
