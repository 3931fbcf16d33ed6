package translator

// pair is one vocabulary entry. Latin keys are stored as written and folded when
// the table is built; the first French key for an Arabic value is the one used
// when translating back to Latin.
type pair struct {
	latin  string
	arabic string
}

var leaveTypes = []pair{
	{"congé annuel", "عطلة سنوية"},
	{"annual leave", "عطلة سنوية"},
	{"congé administratif", "عطلة إدارية"},
	{"congé de maladie", "عطلة مرضية"},
	{"congé maladie", "عطلة مرضية"},
	{"sick leave", "عطلة مرضية"},
	{"congé de maternité", "عطلة الأمومة"},
	{"maternity leave", "عطلة الأمومة"},
	{"congé de paternité", "عطلة الأبوة"},
	{"paternity leave", "عطلة الأبوة"},
	{"congé exceptionnel", "عطلة استثنائية"},
	{"exceptional leave", "عطلة استثنائية"},
	{"congé sans solde", "عطلة بدون أجر"},
	{"unpaid leave", "عطلة بدون أجر"},
	{"congé de récupération", "عطلة تعويضية"},
	{"récupération", "تعويض"},
	{"congé", "عطلة"},
	{"leave", "عطلة"},
}

var jobTitles = []pair{
	{"ingénieur", "مهندس"},
	{"engineer", "مهندس"},
	{"ingénieur principal", "مهندس رئيسي"},
	{"ingénieur d'état", "مهندس دولة"},
	{"technicien", "تقني"},
	{"technician", "تقني"},
	{"technicien spécialisé", "تقني متخصص"},
	{"administrateur", "متصرف"},
	{"directeur", "مدير"},
	{"director", "مدير"},
	{"directeur général", "المدير العام"},
	{"chef", "رئيس"},
	{"chef de service", "رئيس مصلحة"},
	{"chef de division", "رئيس قسم"},
	{"head of department", "رئيس قسم"},
	{"comptable", "محاسب"},
	{"accountant", "محاسب"},
	{"secrétaire", "كاتب"},
	{"secretary", "كاتب"},
	{"agent", "عون"},
	{"cadre", "إطار"},
	{"chauffeur", "سائق"},
	{"driver", "سائق"},
	{"assistant", "مساعد"},
	{"assistante", "مساعدة"},
	{"principal", "رئيسي"},
	{"adjoint", "مساعد"},
	{"stagiaire", "متدرب"},
	{"médecin", "طبيب"},
	{"infirmier", "ممرض"},
}

var departments = []pair{
	{"ressources humaines", "الموارد البشرية"},
	{"human resources", "الموارد البشرية"},
	{"service", "مصلحة"},
	{"division", "قسم"},
	{"direction", "مديرية"},
	{"département", "شعبة"},
	{"finances", "المالية"},
	{"finance", "المالية"},
	{"informatique", "المعلوميات"},
	{"systèmes d'information", "نظم المعلومات"},
	{"production", "الإنتاج"},
	{"maintenance", "الصيانة"},
	{"logistique", "اللوجستيك"},
	{"achats", "المشتريات"},
	{"juridique", "الشؤون القانونية"},
	{"affaires générales", "الشؤون العامة"},
	{"comptabilité", "المحاسبة"},
	{"paie", "الأجور"},
}

var purposes = []pair{
	{"procédure bancaire", "إجراء بنكي"},
	{"bank procedure", "إجراء بنكي"},
	{"dossier administratif", "ملف إداري"},
	{"administrative file", "ملف إداري"},
	{"demande de visa", "طلب تأشيرة"},
	{"visa application", "طلب تأشيرة"},
	{"demande de crédit", "طلب قرض"},
	{"loan application", "طلب قرض"},
	{"formation", "تكوين"},
	{"training", "تكوين"},
	{"réunion", "اجتماع"},
	{"meeting", "اجتماع"},
	{"audit", "افتحاص"},
	{"inspection", "تفتيش"},
	{"séminaire", "ندوة"},
	{"mission", "مهمة"},
	{"visite de chantier", "زيارة الورش"},
	{"site visit", "زيارة الورش"},
}

var transport = []pair{
	{"véhicule de service", "سيارة المصلحة"},
	{"voiture de service", "سيارة المصلحة"},
	{"official vehicle", "سيارة المصلحة"},
	{"voiture personnelle", "سيارة شخصية"},
	{"personal car", "سيارة شخصية"},
	{"voiture", "سيارة"},
	{"car", "سيارة"},
	{"train", "القطار"},
	{"avion", "الطائرة"},
	{"plane", "الطائرة"},
	{"autocar", "الحافلة"},
	{"bus", "الحافلة"},
	{"taxi", "سيارة الأجرة"},
}

var answers = []pair{
	{"oui", "نعم"},
	{"yes", "نعم"},
	{"non", "لا"},
	{"no", "لا"},
}

var places = []pair{
	{"rabat", "الرباط"},
	{"casablanca", "الدار البيضاء"},
	{"fès", "فاس"},
	{"marrakech", "مراكش"},
	{"tanger", "طنجة"},
	{"agadir", "أكادير"},
	{"oujda", "وجدة"},
	{"meknès", "مكناس"},
	{"kénitra", "القنيطرة"},
	{"laâyoune", "العيون"},
}

// connectors are dropped or replaced on their own; they never make a term count
// as translated.
var connectors = map[string]string{
	"de":  "",
	"du":  "",
	"des": "",
	"d":   "",
	"la":  "",
	"le":  "",
	"les": "",
	"l":   "",
	"à":   "",
	"au":  "",
	"of":  "",
	"the": "",
	"et":  "و",
	"and": "و",
	"en":  "في",
	"in":  "في",
}

var arabicConnectors = map[string]string{
	"و":  "et",
	"في": "en",
}

func vocabulary() [][]pair {
	return [][]pair{leaveTypes, jobTitles, departments, purposes, transport, answers, places}
}
