package messages

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/comanda/internal/session"
	"github.com/roach88/comanda/internal/tenant"
)

const rule = "────────────"

// Money formats an amount as "R$ 17.00".
func Money(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}

// Cart renders the cart summary. Lines are grouped by category in order of
// first appearance.
func Cart(snap session.Snapshot) string {
	if snap.Empty() {
		return "*Seu carrinho está vazio.*\n"
	}

	var b strings.Builder
	b.WriteString("*SEU PEDIDO:*\n")
	for _, it := range groupByCategory(snap.Items, orderCategory) {
		b.WriteString(itemLine(it))
		b.WriteByte('\n')
	}
	if snap.Delivery && snap.DeliveryFee.IsPositive() {
		fmt.Fprintf(&b, "\n_+Taxa de entrega: %s_\n", Money(snap.DeliveryFee))
	}
	fmt.Fprintf(&b, "%s\nVALOR ATUAL: *%s* 💰\n", rule, Money(snap.GrandTotal))
	return b.String()
}

// CartWithPrompt renders the cart followed by the menu prompt.
func CartWithPrompt(set *Set, snap session.Snapshot) string {
	return Cart(snap) + "\n" + set.Get(KeyMenuPrompt)
}

// Menu renders the welcome text, the available items by category, and the
// menu prompt.
func Menu(set *Set, items []tenant.CatalogItem) string {
	var b strings.Builder
	b.WriteString(set.Get(KeyWelcome))
	b.WriteByte('\n')

	category := "\x00"
	for _, it := range groupByCategory(items, catalogCategory) {
		if it.Category != category {
			category = it.Category
			b.WriteByte('\n')
			if category != "" {
				fmt.Fprintf(&b, "*%s*\n", category)
			}
		}
		fmt.Fprintf(&b, "%s - %s\n", it.Name, Money(it.Price))
	}
	b.WriteByte('\n')
	b.WriteString(set.Get(KeyMenuPrompt))
	return b.String()
}

// DrinkList renders the numbered drink list. Numbers are 1-based.
func DrinkList(set *Set, drinks []tenant.CatalogItem) string {
	if len(drinks) == 0 {
		return set.Get(KeyNoDrinks)
	}
	var b strings.Builder
	b.WriteString(set.Get(KeyDrinksHeader))
	b.WriteByte('\n')
	for i, d := range drinks {
		fmt.Fprintf(&b, "\n*%d* %s - %s", i+1, d.Name, Money(d.Price))
	}
	return b.String()
}

// AddressConfirmation asks the customer to confirm a delivery address.
func AddressConfirmation(set *Set, address string, fee, total decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n➥ _%s_\n\n", set.Get(KeyAddressConfirm), address)
	if fee.IsPositive() {
		fmt.Fprintf(&b, "💸 Taxa de entrega: %s\n", Money(fee))
	}
	fmt.Fprintf(&b, "🛒 *VALOR FINAL*: %s\n\n", Money(total))
	b.WriteString(set.Get(KeyAddressHint))
	return b.String()
}

// TotalAndPayment shows the order total and the payment menu.
func TotalAndPayment(set *Set, total decimal.Decimal) string {
	return fmt.Sprintf("*VALOR TOTAL: %s*\n%s", Money(total), set.Get(KeyPaymentMenu))
}

// OrderTaken confirms a placed order to the customer. The tenant's pix key
// is appended for pix payments.
func OrderTaken(set *Set, name, paymentMethod string) string {
	var b strings.Builder
	b.WriteString("*PEDIDO ANOTADO* ✍🏻\n")
	if name != "" {
		b.WriteString(name + ", ")
	}
	b.WriteString(set.Get(KeyOrderTaken))
	if key := set.Get(KeyPixKey); paymentMethod == session.PaymentPix && key != "" {
		fmt.Fprintf(&b, "\nChave pix: %s", key)
	}
	return b.String()
}

// Followup is the idle-cart nudge.
func Followup(set *Set, snap session.Snapshot) string {
	return set.Get(KeyFollowup) + "\n\n" + Cart(snap)
}

// OperatorSummary renders a new order for the tenant's operator chat.
func OperatorSummary(rec tenant.OrderRecord) string {
	var b strings.Builder
	b.WriteString("🔔 *NOVO PEDIDO*\n")
	fmt.Fprintf(&b, "Pedido: %s\n", rec.ID)
	if rec.CustomerName != "" {
		fmt.Fprintf(&b, "Cliente: %s (%s)\n", rec.CustomerName, rec.CustomerKey)
	} else {
		fmt.Fprintf(&b, "Cliente: %s\n", rec.CustomerKey)
	}
	if rec.Delivery {
		fmt.Fprintf(&b, "Entrega: %s\n", rec.Address)
	} else {
		b.WriteString("Retirada no local\n")
	}
	if rec.PaymentMethod != "" {
		if rec.ChangeFor.IsPositive() {
			fmt.Fprintf(&b, "Pagamento: %s (troco para %s)\n", rec.PaymentMethod, Money(rec.ChangeFor))
		} else {
			fmt.Fprintf(&b, "Pagamento: %s\n", rec.PaymentMethod)
		}
	}
	if rec.Note != "" {
		fmt.Fprintf(&b, "Obs: %s\n", rec.Note)
	}
	b.WriteString(rule + "\n")
	for _, it := range groupByCategory(rec.Items, orderCategory) {
		fmt.Fprintf(&b, "%s - %s\n", itemLine(it), Money(it.Subtotal()))
	}
	if rec.Delivery && rec.DeliveryFee.IsPositive() {
		fmt.Fprintf(&b, "Taxa de entrega: %s\n", Money(rec.DeliveryFee))
	}
	fmt.Fprintf(&b, "*TOTAL: %s*\n", Money(rec.Total))
	return b.String()
}

func itemLine(it tenant.OrderItem) string {
	line := fmt.Sprintf("%dx %s", it.Quantity, it.Name)
	if it.Note != "" {
		line += " (" + it.Note + ")"
	}
	return line
}

func groupByCategory[T any](items []T, category func(T) string) []T {
	var order []string
	byCat := make(map[string][]T)
	for _, it := range items {
		c := category(it)
		if _, ok := byCat[c]; !ok {
			order = append(order, c)
		}
		byCat[c] = append(byCat[c], it)
	}
	out := make([]T, 0, len(items))
	for _, c := range order {
		out = append(out, byCat[c]...)
	}
	return out
}

func orderCategory(it tenant.OrderItem) string { return it.Category }
func catalogCategory(it tenant.CatalogItem) string { return it.Category }
