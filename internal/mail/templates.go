package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/patisserie-labs/storefront/internal/app/domain/order"
)

const otpHTML = `<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Your sign-in code</h2>
<p>Use this code to sign in to {{.Shop}}:</p>
<p style="font-size:28px;letter-spacing:6px"><strong>{{.Code}}</strong></p>
<p>It expires in {{.Minutes}} minutes. If you did not request it, ignore this e-mail.</p>
</body></html>`

const otpText = `Your {{.Shop}} sign-in code is {{.Code}}.
It expires in {{.Minutes}} minutes. If you did not request it, ignore this e-mail.`

const orderHTML = `<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Thank you for your order, {{.Name}}!</h2>
<p>Order <strong>{{.Order.ID}}</strong> placed on {{.Placed}} is confirmed.</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><th align="left">Item</th><th>Qty</th><th align="right">Price</th></tr>
{{range .Order.Items}}<tr><td>{{.Name}}</td><td align="center">{{.Quantity}}</td><td align="right">{{money .LineTotal}}</td></tr>
{{end}}</table>
<p>Subtotal: {{money .Order.Subtotal}}<br>
{{if .Order.Discount.IsPositive}}Discount{{if .Order.CouponCode}} ({{.Order.CouponCode}}){{end}}: -{{money .Order.Discount}}<br>{{end}}
GST ({{.Order.GSTPercent}}%): {{money .Order.Tax}}<br>
Delivery: {{money .Order.DeliveryFee}}<br>
<strong>Total: {{money .Order.Total}}</strong></p>
<p>Delivering to: {{.Address}}</p>
<p><a href="{{.OrderURL}}">Track your order</a></p>
</body></html>`

const orderText = `Thank you for your order, {{.Name}}!
Order {{.Order.ID}} placed on {{.Placed}} is confirmed.
{{range .Order.Items}}
- {{.Name}} x{{.Quantity}}: {{money .LineTotal}}{{end}}

Total: {{money .Order.Total}}
Delivering to: {{.Address}}
Track your order: {{.OrderURL}}`

var funcs = map[string]interface{}{
	"money": func(v interface{ StringFixed(int32) string }) string { return "₹" + v.StringFixed(2) },
}

var (
	otpHTMLTmpl   = template.Must(template.New("otp").Funcs(funcs).Parse(otpHTML))
	otpTextTmpl   = texttemplate.Must(texttemplate.New("otp").Funcs(funcs).Parse(otpText))
	orderHTMLTmpl = template.Must(template.New("order").Funcs(funcs).Parse(orderHTML))
	orderTextTmpl = texttemplate.Must(texttemplate.New("order").Funcs(funcs).Parse(orderText))
)

func render(html *template.Template, text *texttemplate.Template, data interface{}) (string, string, error) {
	var h, t bytes.Buffer
	if err := html.Execute(&h, data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	if err := text.Execute(&t, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	return h.String(), t.String(), nil
}

// Templates renders the storefront's transactional messages.
type Templates struct {
	Shop    string
	BaseURL string
}

// OTP renders the sign-in code e-mail.
func (t Templates) OTP(to, code string, ttl time.Duration) (Message, error) {
	data := struct {
		Shop    string
		Code    string
		Minutes int
	}{t.shop(), code, int(ttl.Minutes())}
	html, text, err := render(otpHTMLTmpl, otpTextTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: code + " is your " + t.shop() + " sign-in code", HTML: html, Text: text}, nil
}

// OrderConfirmation renders the receipt sent after payment.
func (t Templates) OrderConfirmation(to, name string, o order.Order) (Message, error) {
	if name == "" {
		name = "there"
	}
	data := struct {
		Name     string
		Order    order.Order
		Placed   string
		Address  string
		OrderURL string
	}{
		Name:     name,
		Order:    o,
		Placed:   o.CreatedAt.Format("02 Jan 2006 15:04"),
		Address:  formatAddress(o),
		OrderURL: strings.TrimRight(t.BaseURL, "/") + "/orders/" + o.ID,
	}
	html, text, err := render(orderHTMLTmpl, orderTextTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: t.shop() + " order " + o.ID + " confirmed", HTML: html, Text: text}, nil
}

func (t Templates) shop() string {
	if t.Shop == "" {
		return "Patisserie"
	}
	return t.Shop
}

func formatAddress(o order.Order) string {
	a := o.ShippingAddress
	parts := []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
