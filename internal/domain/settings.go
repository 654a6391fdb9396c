package domain

// Settings is the contract-wide configuration record.
// Admin stays empty until the one-time initialization.
type Settings struct {
	Admin       Address
	Token       Address // crowdfunding token used for campaigns and creation fees
	CreationFee Amount
	Paused      bool
}

// IsInitialized reports whether an admin has been set.
func (s *Settings) IsInitialized() bool {
	return !s.Admin.IsZero()
}

// EmergencyWithdrawal is the singleton time-locked admin withdrawal request.
// At most one unexecuted request exists at a time.
type EmergencyWithdrawal struct {
	Recipient   Address
	Token       Address
	Amount      Amount
	RequestedAt uint64
	Executed    bool
}

// UnlocksAt returns the first timestamp at which the request may execute.
func (w *EmergencyWithdrawal) UnlocksAt(delay uint64) uint64 {
	return w.RequestedAt + delay
}
