package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/saulcastac/PIA-2.0/internal/intent"
	"github.com/saulcastac/PIA-2.0/internal/model"
)

const (
	replyGenericError  = "😕 Tuvimos un problema procesando tu mensaje. Por favor, intentá de nuevo en unos minutos."
	replyAskDate       = "📅 ¿Para qué fecha querés reservar? (ej: 15/12/2024, hoy, mañana)"
	replyInvalidDate   = "No pude entender la fecha. Escribila como DD/MM/AAAA (ej: 15/12/2024) o decí *hoy* o *mañana*."
	replyConfirmAgain  = "Respondé *si* para confirmar la reserva o *no* para cancelarla."
	replyCancelled     = "Listo, cancelé la solicitud. Escribí *reservar* cuando quieras empezar de nuevo."
	replyRetryDeclined = "De acuerdo. Escribí *reservar* cuando quieras buscar otro turno."
	replyBookingAck    = "⏳ Estamos procesando tu reserva. Te aviso en cuanto esté confirmada."
	replyQueueError    = "😕 No pudimos registrar tu solicitud de reserva. Escribí *reservar* para intentarlo de nuevo."
	replyPrepayment    = "⚠️ Tu cuenta registra inasistencias sin aviso, por lo que para reservar necesitás abonar por adelantado. Contactá al club para coordinar el pago."
	replyRefusal       = "Solo puedo ayudarte con reservas de canchas de pádel 🎾. Escribí *reservar* para sacar un turno o *mis reservas* para ver las tuyas."
)

var fieldLabels = map[string]string{
	"court": "cancha",
	"date":  "fecha",
	"time":  "hora",
}

func welcomeReply(courts model.CourtCatalog) string {
	return fmt.Sprintf("¡Hola! 👋 Soy el asistente de reservas de pádel.\n"+
		"Podés escribirme algo como \"Quiero reservar %s mañana a las 10\" o simplemente *reservar*.\n"+
		"Canchas: %s\nEscribí *mis reservas* para ver tus turnos.",
		firstCourt(courts), strings.Join(courts.Names(), ", "))
}

func firstCourt(courts model.CourtCatalog) string {
	if names := courts.Names(); len(names) > 0 {
		return names[0]
	}
	return "una cancha"
}

func infoReply(topic string, courts model.CourtCatalog) string {
	switch topic {
	case intent.TopicCourts:
		return "🎾 Nuestras canchas: " + strings.Join(courts.Names(), ", ") + ".\nEscribí *reservar* para ver la disponibilidad."
	case intent.TopicHours:
		return "🕘 Los horarios disponibles cambian día a día. Escribí *reservar* y elegí una fecha para ver los turnos libres."
	case intent.TopicPrices:
		return "💲 Para consultar precios comunicate con el club. Si querés, puedo ayudarte a reservar: escribí *reservar*."
	default:
		return "Puedo ayudarte a reservar canchas de pádel (" + strings.Join(courts.Names(), ", ") + "). Escribí *reservar* para empezar."
	}
}

// progressReply は分かっている項目と不足している項目を示します
func progressReply(f model.BookingFields, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📝 Tengo estos datos de tu reserva:\n")
	b.WriteString(fieldsSummary(f, loc))

	missing := f.Missing()
	if len(missing) == 0 {
		b.WriteString("\n¿Confirmás la reserva? Respondé *si* o *no*.")
		return b.String()
	}
	labels := make([]string, 0, len(missing))
	for _, m := range missing {
		labels = append(labels, fieldLabels[m])
	}
	fmt.Fprintf(&b, "\nMe falta: %s.", strings.Join(labels, ", "))
	return b.String()
}

func fieldsSummary(f model.BookingFields, loc *time.Location) string {
	var lines []string
	if f.Court != "" {
		lines = append(lines, "• Cancha: "+f.Court)
	}
	if f.Date != "" {
		lines = append(lines, "• Fecha: "+displayDate(f.Date, loc))
	}
	if f.Time != "" {
		lines = append(lines, "• Hora: "+f.Time)
	}
	if f.Duration > 0 {
		lines = append(lines, fmt.Sprintf("• Duración: %d minutos", f.Duration))
	}
	if f.Name != "" {
		lines = append(lines, "• Nombre: "+f.Name)
	}
	if len(lines) == 0 {
		return "• (ninguno todavía)"
	}
	return strings.Join(lines, "\n")
}

func confirmationReply(f model.BookingFields, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("✅ Resumen de tu reserva:\n")
	fmt.Fprintf(&b, "• Cancha: %s\n• Fecha: %s\n• Hora: %s\n• Duración: %d minutos",
		f.Court, displayDate(f.Date, loc), f.Time, f.DurationOrDefault())
	if f.Name != "" {
		b.WriteString("\n• Nombre: " + f.Name)
	}
	b.WriteString("\n\n¿Confirmás? Respondé *si* o *no*.")
	return b.String()
}

func timesReply(date string, cc model.ConversationContext, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕐 Horarios disponibles para el %s:\n", displayDate(date, loc))
	for _, t := range cc.SortedTimes() {
		fmt.Fprintf(&b, "• %s: %s\n", t, strings.Join(cc.TimeGroups[t], ", "))
	}
	b.WriteString("\nEscribí la hora que prefieras (ej: ")
	b.WriteString(cc.SortedTimes()[0])
	b.WriteString(") o el número de una opción:\n")
	b.WriteString(optionList(cc.Options, true))
	return strings.TrimRight(b.String(), "\n")
}

func courtsReply(clock string, options []model.Slot) string {
	return fmt.Sprintf("🎾 Canchas libres a las %s:\n%s\nRespondé con el número de la cancha.", clock, optionList(options, false))
}

func optionList(options []model.Slot, withTime bool) string {
	var b strings.Builder
	for i, o := range options {
		if withTime {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, o.Time, o.Court)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o.Court)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func invalidSelectionReply(n int) string {
	return fmt.Sprintf("Esa opción no es válida. Elegí un número entre 1 y %d.", n)
}

func unknownTimeReply(cc model.ConversationContext) string {
	return "No hay canchas libres a esa hora. Horarios disponibles: " + strings.Join(cc.SortedTimes(), ", ") + "."
}

func noSlotsReply(date string, loc *time.Location) string {
	return fmt.Sprintf("😔 No hay canchas libres para el %s. ¿Querés probar con otra fecha? Respondé *si* o *no*.", displayDate(date, loc))
}

func noDataReply(date string, loc *time.Location) string {
	return fmt.Sprintf("ℹ️ Todavía no tengo datos de disponibilidad para el %s. Probá más tarde o elegí otra fecha escribiendo *reservar*.", displayDate(date, loc))
}

func reservationsReply(list []model.Reservation, loc *time.Location) string {
	if len(list) == 0 {
		return "No tenés reservas próximas. Escribí *reservar* para sacar un turno."
	}
	var b strings.Builder
	b.WriteString("📋 Tus próximas reservas:\n")
	for i, r := range list {
		fmt.Fprintf(&b, "%d. %s - %s (%d min)\n", i+1, r.CourtName, r.StartsAt.In(loc).Format("02/01/2006 15:04"), r.DurationMinutes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func displayDate(date string, loc *time.Location) string {
	t, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
