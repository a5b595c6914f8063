package sham

import (
	log "github.com/sirupsen/logrus"
)

// DonationSite 是可以接受优先级捐赠的东西（锁）。
// Holder 返回当前持有者，没有持有者时返回 nil。
type DonationSite interface {
	Holder() *Thread
}

// Donate 当前线程要等 site，把自己的优先级捐给 site 的持有者，
// 并沿着「持有者在等的锁的持有者」一路传下去，最多 Config.DonationDepth 层。
// 必须关着中断调用。MLFQS 下什么都不做。
func (os *OS) Donate(site DonationSite) {
	if !os.Scheduler.donation() {
		return
	}
	os.assert(os.cpu.level == IntrOff, "donate with interrupts on")

	cur := os.Current()
	holder := site.Holder()
	if holder == nil || holder == cur {
		return
	}
	cur.waitingOn = site
	insertDonor(holder, cur)

	t := cur
	for depth := 0; depth < os.cfg.DonationDepth; depth++ {
		if t.waitingOn == nil {
			break
		}
		h := t.waitingOn.Holder()
		if h == nil {
			break
		}
		if h.priority < t.priority {
			os.log.WithFields(log.Fields{
				"from":     t.String(),
				"to":       h.String(),
				"priority": t.priority,
				"depth":    depth,
			}).Debug("[OS] Donate")
			os.trace(EventDonate, h, t)
			os.setEffective(h, t.priority)
		}
		t = h
	}
}

// Revoke 当前线程放弃 site：拿掉所有因为等 site 而捐赠给它的线程，
// 重新计算有效优先级。调用者之后应当检查抢占。
func (os *OS) Revoke(site DonationSite) {
	if !os.Scheduler.donation() {
		return
	}
	cur := os.Current()
	kept := cur.donors[:0]
	for _, d := range cur.donors {
		if d.waitingOn != site {
			kept = append(kept, d)
		}
	}
	for i := len(kept); i < len(cur.donors); i++ {
		cur.donors[i] = nil
	}
	cur.donors = kept
	os.refreshPriority(cur)
}

// Acquired 当前线程拿到了 site，不再等它
func (os *OS) Acquired(site DonationSite) {
	cur := os.Current()
	if cur.waitingOn == site {
		cur.waitingOn = nil
	}
}

// refreshPriority 有效优先级 = max(基础优先级, 捐赠者中最高的优先级)
func (os *OS) refreshPriority(t *Thread) {
	p := t.basePriority
	for _, d := range t.donors {
		if d.priority > p {
			p = d.priority
		}
	}
	os.setEffective(t, p)
}

// insertDonor 按优先级从高到低把 d 插进 t 的捐赠者列表，相同优先级先来的在前
func insertDonor(t, d *Thread) {
	i := len(t.donors)
	for j, x := range t.donors {
		if d.priority > x.priority {
			i = j
			break
		}
	}
	t.donors = append(t.donors, nil)
	copy(t.donors[i+1:], t.donors[i:])
	t.donors[i] = d
}
