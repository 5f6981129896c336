package machine

import (
	"errors"
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/mmio"
)

// PLL limits from the datasheet.
const (
	pllMinVCOFreq = 400 * MHz
	pllMaxVCOFreq = 1600 * MHz
	pllMinRefFreq = 5 * MHz
	pllMinFBDiv   = 16
	pllMaxFBDiv   = 320
	pllMaxRefDiv  = 63
	pllMaxPostDiv = 7
)

// PLLConfig holds the parameters of one PLL.
//
//	output = xosc / RefDiv * fbdiv / (PostDiv1 * PostDiv2)
//
// where fbdiv = VCOFreq * RefDiv / xosc.
type PLLConfig struct {
	RefDiv   uint32 `yaml:"refdiv"`
	VCOFreq  uint32 `yaml:"vco"`
	PostDiv1 uint32 `yaml:"postdiv1"`
	PostDiv2 uint32 `yaml:"postdiv2"`
}

// FeedbackDiv returns the FBDIV_INT value for a reference of xoscFreq Hz.
func (cfg PLLConfig) FeedbackDiv(xoscFreq uint32) uint32 {
	return uint32(uint64(cfg.VCOFreq) * uint64(cfg.RefDiv) / uint64(xoscFreq))
}

// OutputFreq returns the frequency the PLL produces from xoscFreq.
func (cfg PLLConfig) OutputFreq(xoscFreq uint32) uint32 {
	if cfg.RefDiv == 0 || cfg.PostDiv1 == 0 || cfg.PostDiv2 == 0 {
		return 0
	}
	vco := uint64(xoscFreq) / uint64(cfg.RefDiv) * uint64(cfg.FeedbackDiv(xoscFreq))
	return uint32(vco / uint64(cfg.PostDiv1*cfg.PostDiv2))
}

var (
	errVCOOutOfRange   = errors.New("VCO frequency out of range")
	errFBDivOutOfRange = errors.New("feedback divider out of range")
	errPostDivRange    = errors.New("post divider out of range")
	errRefDivRange     = errors.New("reference divider out of range")
	errRefFreqTooLow   = errors.New("reference frequency too low for divider")
)

// Validate checks cfg against the PLL limits for a reference of xoscFreq Hz.
// Configure does not call it.
func (cfg PLLConfig) Validate(xoscFreq uint32) error {
	if cfg.RefDiv < 1 || cfg.RefDiv > pllMaxRefDiv {
		return fmt.Errorf("machine: pll: refdiv %d: %w", cfg.RefDiv, errRefDivRange)
	}
	if xoscFreq/cfg.RefDiv < pllMinRefFreq {
		return fmt.Errorf("machine: pll: %d Hz / %d: %w", xoscFreq, cfg.RefDiv, errRefFreqTooLow)
	}
	if cfg.VCOFreq < pllMinVCOFreq || cfg.VCOFreq > pllMaxVCOFreq {
		return fmt.Errorf("machine: pll: vco %d Hz: %w", cfg.VCOFreq, errVCOOutOfRange)
	}
	fbdiv := cfg.FeedbackDiv(xoscFreq)
	if fbdiv < pllMinFBDiv || fbdiv > pllMaxFBDiv {
		return fmt.Errorf("machine: pll: fbdiv %d: %w", fbdiv, errFBDivOutOfRange)
	}
	if uint64(xoscFreq)*uint64(fbdiv) != uint64(cfg.VCOFreq)*uint64(cfg.RefDiv) {
		return fmt.Errorf("machine: pll: vco %d Hz is not a multiple of %d Hz", cfg.VCOFreq, xoscFreq/cfg.RefDiv)
	}
	if cfg.PostDiv1 < 1 || cfg.PostDiv1 > pllMaxPostDiv || cfg.PostDiv2 < 1 || cfg.PostDiv2 > pllMaxPostDiv {
		return fmt.Errorf("machine: pll: postdiv %d/%d: %w", cfg.PostDiv1, cfg.PostDiv2, errPostDivRange)
	}
	return nil
}

// PLL is one of the two phase-locked loops.
type PLL struct {
	hw   *rp.PLL_Type
	poll mmio.Poller
}

// NewPLL returns the PLL behind hw.
func NewPLL(hw *rp.PLL_Type, poll mmio.Poller) *PLL {
	return &PLL{hw: hw, poll: poll}
}

// Configure programs the PLL from a reference of xoscFreq Hz and waits for
// lock. The PLL must have just come out of reset and must not be feeding any
// clock. Out of range parameters never lock.
func (pll *PLL) Configure(xoscFreq uint32, cfg PLLConfig) error {
	fbdiv := cfg.FeedbackDiv(xoscFreq)

	// Load VCO-related dividers before starting VCO
	pll.hw.CS.Set(cfg.RefDiv & rp.PLL_CS_REFDIV_Msk)
	pll.hw.FBDIV_INT.Set(fbdiv & rp.PLL_FBDIV_INT_Msk)

	// Turn on PLL
	pll.hw.PWR.ClearBits(rp.PLL_PWR_PD | rp.PLL_PWR_VCOPD)

	// Wait for PLL to lock
	if err := pll.poll.UntilSet(pll.hw.CS, rp.PLL_CS_LOCK); err != nil {
		return err
	}

	// Set up post dividers
	pll.hw.PRIM.Set(cfg.PostDiv1<<rp.PLL_PRIM_POSTDIV1_Pos | cfg.PostDiv2<<rp.PLL_PRIM_POSTDIV2_Pos)

	// Turn on post divider
	pll.hw.PWR.ClearBits(rp.PLL_PWR_POSTDIVPD)
	return nil
}

// Locked reports whether the PLL reports lock.
func (pll *PLL) Locked() bool {
	return pll.hw.CS.HasBits(rp.PLL_CS_LOCK)
}
