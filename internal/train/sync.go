package train

import "perilune/internal/nn"

// SyncScheduler keeps the target network trailing the online network: a
// Polyak blend toward the online parameters on the soft interval and a full
// overwrite on the hard interval. When both fire on the same step the hard
// copy supersedes the blend. Nothing else ever mutates the target's
// parameters, and the target never receives gradients.
type SyncScheduler struct {
	Tau          float64
	SoftInterval int64
	HardInterval int64
}

// Sync is called once per environment step with the current global step.
func (s SyncScheduler) Sync(step int64, online, target *nn.Network) error {
	if s.HardInterval > 0 && step%s.HardInterval == 0 {
		return target.CopyFrom(online)
	}
	if s.SoftInterval > 0 && step%s.SoftInterval == 0 {
		return target.BlendFrom(online, s.Tau)
	}
	return nil
}
