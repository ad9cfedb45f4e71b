package memory

// Store bundles one repository of each kind, for STORAGE_DRIVER=memory and tests.
type Store struct {
	Messages  *MessageRepository
	Devices   *DeviceRepository
	Schedules *ScheduleRepository
	Rules     *RuleRepository
	Contacts  *ContactRepository
	Templates *TemplateRepository
	Audit     *AuditRepository
}

func NewStore() *Store {
	return &Store{
		Messages:  NewMessageRepository(),
		Devices:   NewDeviceRepository(),
		Schedules: NewScheduleRepository(),
		Rules:     NewRuleRepository(),
		Contacts:  NewContactRepository(),
		Templates: NewTemplateRepository(),
		Audit:     NewAuditRepository(),
	}
}
