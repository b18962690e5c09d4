package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tolkflow/audience"
	"tolkflow/booking"
	"tolkflow/user"
)

const dueFormat = "2006-01-02 15:04:05"

// smsConcurrency bounds parallel sends against the SMS gateway.
const smsConcurrency = 8

// Directory is the profile lookup surface the dispatcher needs to resolve
// recipients and language names.
type Directory interface {
	GetByID(ctx context.Context, id string) (user.Profile, error)
	LanguageName(ctx context.Context, langID int64) (string, error)
}

// Dispatcher routes booking lifecycle notifications to the right channel and
// audience. It implements the lifecycle service's Notifier contract.
type Dispatcher struct {
	selector *audience.Selector
	dir      Directory
	mailer   Mailer
	push     PushGateway
	sms      SMSSender
	log      *slog.Logger
	now      func() time.Time

	smsFrom      string
	nightStart   int
	nightEnd     int
	businessHour int
}

// NewDispatcher wires the dispatcher. Night hours bound the quiet window for
// translators who opted out of nighttime pushes; businessHour is when their
// delayed pushes fire.
func NewDispatcher(selector *audience.Selector, dir Directory, mailer Mailer, push PushGateway, sms SMSSender, log *slog.Logger, smsFrom string, nightStart, nightEnd, businessHour int) *Dispatcher {
	return &Dispatcher{
		selector:     selector,
		dir:          dir,
		mailer:       mailer,
		push:         push,
		sms:          sms,
		log:          log,
		now:          time.Now,
		smsFrom:      smsFrom,
		nightStart:   nightStart,
		nightEnd:     nightEnd,
		businessHour: businessHour,
	}
}

// WithClock overrides the time source, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// BroadcastJob pushes a new or reopened job to every eligible translator.
// Translators in the delayed bucket get their push scheduled for the next
// business morning.
func (d *Dispatcher) BroadcastJob(ctx context.Context, job booking.Job, excludeUserID string) {
	buckets, err := d.selector.TranslatorsForJob(ctx, job, excludeUserID)
	if err != nil {
		d.log.Error("broadcast audience selection failed", "job_id", job.ID, "error", err)
		return
	}

	language := d.languageName(ctx, job.LanguageID)
	var text string
	if job.Immediate {
		text = fmt.Sprintf("Ny akutbokning för %stolk %dmin", language, job.Duration)
	} else {
		text = fmt.Sprintf("Ny bokning för %stolk %dmin %s", language, job.Duration, job.Due.Format(dueFormat))
	}

	d.log.Info("broadcasting job",
		"job_id", job.ID,
		"immediate_recipients", len(buckets.Immediate),
		"delayed_recipients", len(buckets.Delayed))

	data := jobPayload(job, "suitable_job")
	d.pushToBucket(ctx, job, buckets.Immediate, text, data, nil)
	if len(buckets.Delayed) > 0 {
		after := audience.NextBusinessTime(d.now(), d.businessHour)
		d.pushToBucket(ctx, job, buckets.Delayed, text, data, &after)
	}
}

// BroadcastSMS texts every eligible translator about the job and returns the
// number of messages handed to the gateway. The wording differs for on-site
// and phone sessions. Failures are logged per recipient and never raised.
func (d *Dispatcher) BroadcastSMS(ctx context.Context, job booking.Job) int {
	buckets, err := d.selector.TranslatorsForJob(ctx, job, "")
	if err != nil {
		d.log.Error("sms audience selection failed", "job_id", job.ID, "error", err)
		return 0
	}
	translators := append(buckets.Immediate, buckets.Delayed...)

	city := job.Town
	if city == "" {
		if requester, err := d.dir.GetByID(ctx, job.UserID); err == nil {
			city = requester.City
		}
	}

	date := job.Due.Format("02.01.2006")
	clock := job.Due.Format("15:04")
	duration := hoursMins(job.Duration)

	var body string
	if job.CustomerPhysicalType && !job.CustomerPhoneType {
		body = fmt.Sprintf(
			"Ny platstolkning %s kl %s i %s, %s. Gå till din Dashboard för att se och acceptera bokningen #%s. Tack!",
			date, clock, city, duration, job.ID)
	} else {
		body = fmt.Sprintf(
			"Ny telefontolkning %s kl %s, %s. Gå till din Dashboard för att se och acceptera bokningen #%s. Tack!",
			date, clock, duration, job.ID)
	}

	var sent atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(smsConcurrency)
	for _, t := range translators {
		if t.Mobile == nil || *t.Mobile == "" {
			continue
		}
		g.Go(func() error {
			status, err := d.sms.Send(ctx, d.smsFrom, *t.Mobile, body)
			if err != nil {
				d.log.Error("sms send failed", "job_id", job.ID, "to", t.Email, "error", err)
				return nil
			}
			d.log.Info("sms sent", "job_id", job.ID, "to", t.Email, "status", status)
			sent.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(sent.Load())
}

// JobAccepted confirms the acceptance to the customer by email and push.
func (d *Dispatcher) JobAccepted(ctx context.Context, job booking.Job) {
	requester, email, name := d.customerContact(ctx, job)
	subject := fmt.Sprintf("Bekräftelse - tolk har accepterat er bokning (bokning # %s)", job.ID)
	d.mail(ctx, email, name, subject, "job-accepted", mailPayload(job))

	d.pushToUser(ctx, requester, job, "job_accepted", "Din bokning har accepterats av en tolk.")
}

// JobReopened mails the customer that the booking is back on the market and
// re-broadcasts it to all eligible translators.
func (d *Dispatcher) JobReopened(ctx context.Context, job booking.Job) {
	_, email, name := d.customerContact(ctx, job)
	language := d.languageName(ctx, job.LanguageID)
	subject := fmt.Sprintf("Vi har nu återöppnat er bokning av %stolk för bokning #%s", language, job.ID)
	d.mail(ctx, email, name, subject, "job-change-status-to-customer", mailPayload(job))

	d.BroadcastJob(ctx, job, "")
}

// BookingCancelledFromPending mails the customer that their still-unassigned
// booking was cancelled.
func (d *Dispatcher) BookingCancelledFromPending(ctx context.Context, job booking.Job) {
	_, email, name := d.customerContact(ctx, job)
	subject := fmt.Sprintf("Avbokning av bokningsnr: # %s", job.ID)
	d.mail(ctx, email, name, subject, "status-changed-from-pending-or-assigned-customer", mailPayload(job))
}

// SessionEnded mails the session summary to both parties: the customer's copy
// is marked for invoicing, the translator's for payroll.
func (d *Dispatcher) SessionEnded(ctx context.Context, job booking.Job, translatorID, sessionTime string) {
	subject := fmt.Sprintf("Information om avslutad tolkning för bokningsnummer # %s", job.ID)
	payload := mailPayload(job)
	payload["session_time"] = sessionHoursMins(sessionTime)

	_, email, name := d.customerContact(ctx, job)
	customerPayload := clone(payload)
	customerPayload["for_text"] = "faktura"
	d.mail(ctx, email, name, subject, "session-ended", customerPayload)

	translator, err := d.dir.GetByID(ctx, translatorID)
	if err != nil {
		d.log.Error("session-ended mail recipient lookup failed", "job_id", job.ID, "translator_id", translatorID, "error", err)
		return
	}
	translatorPayload := clone(payload)
	translatorPayload["for_text"] = "lön"
	d.mail(ctx, translator.Email, translator.Name, subject, "session-ended", translatorPayload)
}

// WithdrawCancellation mails both parties that an assigned booking was
// withdrawn by an admin edit.
func (d *Dispatcher) WithdrawCancellation(ctx context.Context, job booking.Job, translatorID string) {
	subject := fmt.Sprintf("Information om avbokning av bokningsnr: # %s", job.ID)
	_, email, name := d.customerContact(ctx, job)
	d.mail(ctx, email, name, subject, "status-changed-from-pending-or-assigned-customer", mailPayload(job))

	translator, err := d.dir.GetByID(ctx, translatorID)
	if err != nil {
		d.log.Error("withdraw mail recipient lookup failed", "job_id", job.ID, "translator_id", translatorID, "error", err)
		return
	}
	d.mail(ctx, translator.Email, translator.Name, subject, "job-cancel-translator", mailPayload(job))
}

// CustomerCancelled pushes a late-cancellation notice to the translator who
// held the booking.
func (d *Dispatcher) CustomerCancelled(ctx context.Context, job booking.Job, translatorID string) {
	translator, err := d.dir.GetByID(ctx, translatorID)
	if err != nil {
		d.log.Error("cancel push recipient lookup failed", "job_id", job.ID, "translator_id", translatorID, "error", err)
		return
	}
	language := d.languageName(ctx, job.LanguageID)
	text := fmt.Sprintf(
		"Kunden har avbokat bokningen för %stolk, %dmin, %s. Var god och kolla dina tidigare bokningar för detaljer.",
		language, job.Duration, job.Due.Format(dueFormat))
	d.pushToUser(ctx, translator, job, "job_cancelled", text)
}

// TranslatorCancelled tells the customer their translator stepped down and a
// replacement is being sought.
func (d *Dispatcher) TranslatorCancelled(ctx context.Context, job booking.Job) {
	requester, _, _ := d.customerContact(ctx, job)
	language := d.languageName(ctx, job.LanguageID)
	text := fmt.Sprintf(
		"Er %stolk, %dmin %s, har avbokat tolkningen. Vi letar nu efter en ny tolk som kan ersätta denne. Tack.",
		language, job.Duration, job.Due.Format(dueFormat))
	d.pushToUser(ctx, requester, job, "job_cancelled", text)
}

// DateChanged mails both parties about a rescheduled booking.
func (d *Dispatcher) DateChanged(ctx context.Context, job booking.Job, translatorID string, oldDue time.Time) {
	subject := fmt.Sprintf("Meddelande om ändring av tolkbokning för uppdrag # %s", job.ID)
	payload := mailPayload(job)
	payload["old_time"] = oldDue.Format(dueFormat)

	_, email, name := d.customerContact(ctx, job)
	d.mail(ctx, email, name, subject, "job-changed-date", payload)

	if translator, err := d.dir.GetByID(ctx, translatorID); err == nil {
		d.mail(ctx, translator.Email, translator.Name, subject, "job-changed-date", payload)
	}
}

// TranslatorChanged mails the customer, the previous translator and the new
// one about a reassignment.
func (d *Dispatcher) TranslatorChanged(ctx context.Context, job booking.Job, oldTranslatorID, newTranslatorID string) {
	subject := fmt.Sprintf("Meddelande om tilldelning av tolkuppdrag för uppdrag # %s", job.ID)
	payload := mailPayload(job)

	_, email, name := d.customerContact(ctx, job)
	d.mail(ctx, email, name, subject, "job-changed-translator-customer", payload)

	if oldTranslatorID != "" {
		if old, err := d.dir.GetByID(ctx, oldTranslatorID); err == nil {
			d.mail(ctx, old.Email, old.Name, subject, "job-changed-translator-old-translator", payload)
		}
	}
	if next, err := d.dir.GetByID(ctx, newTranslatorID); err == nil {
		d.mail(ctx, next.Email, next.Name, subject, "job-changed-translator-new-translator", payload)
	}
}

// TranslatorAssigned mails the translator a pending booking was handed to
// them by an admin edit.
func (d *Dispatcher) TranslatorAssigned(ctx context.Context, job booking.Job, translatorID string) {
	translator, err := d.dir.GetByID(ctx, translatorID)
	if err != nil {
		d.log.Error("assignment mail recipient lookup failed", "job_id", job.ID, "translator_id", translatorID, "error", err)
		return
	}
	subject := fmt.Sprintf("Meddelande om tilldelning av tolkuppdrag för uppdrag # %s", job.ID)
	d.mail(ctx, translator.Email, translator.Name, subject, "job-changed-translator-new-translator", mailPayload(job))
}

// LanguageChanged mails both parties that the booking's language was edited.
func (d *Dispatcher) LanguageChanged(ctx context.Context, job booking.Job, translatorID string, oldLanguageID int64) {
	subject := fmt.Sprintf("Meddelande om ändring av tolkbokning för uppdrag # %s", job.ID)
	payload := mailPayload(job)
	payload["old_lang"] = d.languageName(ctx, oldLanguageID)

	_, email, name := d.customerContact(ctx, job)
	d.mail(ctx, email, name, subject, "job-changed-lang", payload)

	if translator, err := d.dir.GetByID(ctx, translatorID); err == nil {
		d.mail(ctx, translator.Email, translator.Name, subject, "job-changed-lang", payload)
	}
}

// SessionStartReminder pushes a be-prepared notice ahead of the session.
func (d *Dispatcher) SessionStartReminder(ctx context.Context, job booking.Job, userID string) {
	recipient, err := d.dir.GetByID(ctx, userID)
	if err != nil {
		d.log.Error("reminder recipient lookup failed", "job_id", job.ID, "user_id", userID, "error", err)
		return
	}
	language := d.languageName(ctx, job.LanguageID)

	kind := "telefontolkningen"
	if job.CustomerPhysicalType {
		kind = "platstolkningen"
	}
	text := fmt.Sprintf(
		"Du har nu fått %s för %s kl %d den %s. Vänligen säkerställ att du är förberedd för den tiden. Tack!",
		kind, language, job.Duration, job.Due.Format(dueFormat))
	d.pushToUser(ctx, recipient, job, "session_start_remind", text)
}

// JobCreatedConfirmation mails the booking receipt to the customer.
func (d *Dispatcher) JobCreatedConfirmation(ctx context.Context, job booking.Job) {
	_, email, name := d.customerContact(ctx, job)
	subject := fmt.Sprintf("Vi har mottagit er tolkbokning. Bokningsnr: #%s", job.ID)
	d.mail(ctx, email, name, subject, "job-created", mailPayload(job))
}

// JobExpired tells the customer nobody accepted their booking in time.
func (d *Dispatcher) JobExpired(ctx context.Context, job booking.Job) {
	requester, _, _ := d.customerContact(ctx, job)
	language := d.languageName(ctx, job.LanguageID)
	text := fmt.Sprintf(
		"Tyvärr har ingen tolk accepterat er bokning: (%s, %dmin, %s). Vänligen pröva boka om tiden.",
		language, job.Duration, job.Due.Format(dueFormat))
	d.pushToUser(ctx, requester, job, "job_expired", text)
}

func (d *Dispatcher) pushToBucket(ctx context.Context, job booking.Job, recipients []user.Profile, text string, data map[string]any, sendAfter *time.Time) {
	if len(recipients) == 0 {
		return
	}
	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		emails = append(emails, r.Email)
	}

	iosSound, androidSound := soundsFor(job)
	err := d.push.Send(ctx, PushMessage{
		Tags:         EmailTags(emails),
		Title:        "DigitalTolk",
		Text:         text,
		Data:         data,
		IOSSound:     iosSound,
		AndroidSound: androidSound,
		SendAfter:    sendAfter,
	})
	if err != nil {
		d.log.Error("push send failed", "job_id", job.ID, "recipients", len(recipients), "error", err)
	}
}

// pushToUser targets one recipient, honoring their opt-out and nighttime
// preferences.
func (d *Dispatcher) pushToUser(ctx context.Context, recipient user.Profile, job booking.Job, notificationType, text string) {
	if recipient.NotGetNotification {
		return
	}

	var sendAfter *time.Time
	if recipient.NotGetNighttime && audience.IsNightTime(d.now(), d.nightStart, d.nightEnd) {
		after := audience.NextBusinessTime(d.now(), d.businessHour)
		sendAfter = &after
	}

	data := jobPayload(job, notificationType)
	iosSound, androidSound := soundsFor(job)
	err := d.push.Send(ctx, PushMessage{
		Tags:         EmailTags([]string{recipient.Email}),
		Title:        "DigitalTolk",
		Text:         text,
		Data:         data,
		IOSSound:     iosSound,
		AndroidSound: androidSound,
		SendAfter:    sendAfter,
	})
	if err != nil {
		d.log.Error("push send failed", "job_id", job.ID, "to", recipient.Email, "error", err)
	}
}

func (d *Dispatcher) mail(ctx context.Context, to, name, subject, template string, payload map[string]any) {
	if err := d.mailer.Send(ctx, to, name, subject, template, payload); err != nil {
		d.log.Error("mail send failed", "to", to, "subject", subject, "error", err)
	}
}

// customerContact resolves the requester profile and the address to mail:
// the job-level email override wins over the account address.
func (d *Dispatcher) customerContact(ctx context.Context, job booking.Job) (user.Profile, string, string) {
	requester, err := d.dir.GetByID(ctx, job.UserID)
	if err != nil {
		d.log.Error("customer lookup failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
	}
	email := job.UserEmail
	if email == "" {
		email = requester.Email
	}
	return requester, email, requester.Name
}

func (d *Dispatcher) languageName(ctx context.Context, langID int64) string {
	name, err := d.dir.LanguageName(ctx, langID)
	if err != nil {
		d.log.Error("language lookup failed", "language_id", langID, "error", err)
		return ""
	}
	return name
}

// soundsFor picks the push sounds: scheduled bookings ring normally,
// immediate ones use the emergency sound.
func soundsFor(job booking.Job) (ios, android string) {
	if !job.Immediate {
		return "normal_booking.mp3", "normal_booking"
	}
	return "emergency_booking.mp3", "default"
}

// jobPayload is the data blob attached to every push about a job.
func jobPayload(job booking.Job, notificationType string) map[string]any {
	return map[string]any{
		"notification_type":      notificationType,
		"job_id":                 job.ID,
		"from_language_id":       job.LanguageID,
		"immediate":              yesNoFlag(job.Immediate),
		"duration":               job.Duration,
		"status":                 string(job.Status),
		"gender":                 job.Gender,
		"certified":              string(job.Certified),
		"due":                    job.Due.Format(dueFormat),
		"job_type":               string(job.JobType),
		"customer_phone_type":    yesNoFlag(job.CustomerPhoneType),
		"customer_physical_type": yesNoFlag(job.CustomerPhysicalType),
		"job_for":                booking.JobForLabels(job),
	}
}

func mailPayload(job booking.Job) map[string]any {
	return map[string]any{
		"job_id":   job.ID,
		"due":      job.Due.Format(dueFormat),
		"duration": job.Duration,
		"town":     job.Town,
	}
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func yesNoFlag(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// hoursMins renders a duration in minutes the way the SMS templates expect:
// "90" becomes "1 tim 30 min", under an hour stays "45 min".
func hoursMins(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%d tim", h)
	}
	return fmt.Sprintf("%d tim %d min", h, m)
}

// sessionHoursMins converts a stored "H:MM:SS" session time to the "H tim
// MM min" phrasing used in the session summary emails.
func sessionHoursMins(sessionTime string) string {
	var h, m, s int
	if _, err := fmt.Sscanf(sessionTime, "%d:%d:%d", &h, &m, &s); err != nil {
		return sessionTime
	}
	return fmt.Sprintf("%d tim %d min", h, m)
}
